/*
Package purchase orchestrates purchases, top-ups, and the undo window.

PURPOSE:
  The Coordinator is the only writer of purchase and top-up entries. For
  each purchase it opens a fixed-duration undo window; an explicit undo
  inside the window appends a compensating entry, expiry closes the window
  without any store mutation. The original purchase entry is never deleted
  or edited.

STATE MACHINE (per purchase):
  IDLE -> PENDING -> { CONFIRMED_FINAL | UNDONE }

UNDO WINDOWS:
  Pending undos are keyed by original entry id, so concurrent purchases
  each carry their own independent window. Whether an undo is still
  allowed is decided purely by comparing the clock against the stored
  ExpiresAt - never by an in-process timer having fired. Expired windows
  are garbage-collected lazily on lookup (and by the api sweeper, which
  only drives UI-facing expiry).

AFFORDABILITY:
  The balance check and the debit append are serialized per user: a
  purchase re-verifies the balance floor (-5 EUR) under the user's lock
  before appending, so two concurrent purchases cannot both observe a
  sufficient balance and overdraw past the floor.

SESSION GATE:
  Every mutating call goes through session.Lifecycle.EnsureValidToken
  first and aborts with an unauthenticated error when no valid token
  results. Nothing is written in that case.

SEE ALSO:
  - ledger/ledger.go: The append-only log underneath
  - session/lifecycle.go: Token gate
  - api/sweeper.go: UI-facing countdown over the pending windows
*/
package purchase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/session"
)

const (
	// DefaultUndoWindow is how long a purchase stays undoable.
	DefaultUndoWindow = 10 * time.Second

	// BalanceFloorCents is how far a balance may go negative: a user can
	// owe the tab at most 5 EUR.
	BalanceFloorCents int64 = -500
)

// =============================================================================
// PENDING UNDO - Transient, never persisted to the ledger store
// =============================================================================

// PendingUndo tracks one open undo window. It lives only for the duration
// of the window; the compensating entry, if any, is what gets persisted.
type PendingUndo struct {
	OriginalEntryID ledger.EntryID
	UserID          ledger.UserID
	AmountCents     int64 // The original (negative) purchase amount
	ExpiresAt       time.Time
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator records purchases and top-ups and manages undo windows.
type Coordinator struct {
	Ledger   ledger.Ledger
	Sessions *session.Lifecycle
	Clock    ledger.Clock

	// Refresh is handed to the session gate for just-in-time token
	// refresh. May be nil; expired sessions are then simply rejected.
	Refresh session.RefreshFunc

	// UndoWindow is the fixed undo duration. Zero means DefaultUndoWindow.
	UndoWindow time.Duration

	mu      sync.Mutex
	pending map[ledger.EntryID]PendingUndo

	// Per-user locks serialize the balance check against the append.
	userMu map[ledger.UserID]*sync.Mutex
	mapMu  sync.Mutex
}

func NewCoordinator(l ledger.Ledger, sessions *session.Lifecycle, clock ledger.Clock) *Coordinator {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Coordinator{
		Ledger:   l,
		Sessions: sessions,
		Clock:    clock,
		pending:  make(map[ledger.EntryID]PendingUndo),
		userMu:   make(map[ledger.UserID]*sync.Mutex),
	}
}

func (c *Coordinator) window() time.Duration {
	if c.UndoWindow > 0 {
		return c.UndoWindow
	}
	return DefaultUndoWindow
}

func (c *Coordinator) userLock(userID ledger.UserID) *sync.Mutex {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	if _, ok := c.userMu[userID]; !ok {
		c.userMu[userID] = &sync.Mutex{}
	}
	return c.userMu[userID]
}

func (c *Coordinator) ensureSession(ctx context.Context) error {
	if c.Sessions == nil {
		return nil
	}
	return c.Sessions.EnsureValidToken(ctx, c.Refresh)
}

// =============================================================================
// RECORD PURCHASE
// =============================================================================

// PurchaseInput is everything captured at the moment of sale. The unit
// price and catalog item are snapshots - later catalog changes never
// retroactively alter the entry.
type PurchaseInput struct {
	UserID         ledger.UserID
	LocationID     ledger.LocationID
	ShelfID        ledger.ShelfID
	CatalogItemID  string
	UnitPriceCents int64
	Quantity       int
	PaymentMethod  ledger.PaymentMethod
	IdempotencyKey string
}

// RecordPurchase appends one debit entry and opens an undo window for it.
// Returns the entry together with the window's expiry.
func (c *Coordinator) RecordPurchase(ctx context.Context, in PurchaseInput) (ledger.Entry, PendingUndo, error) {
	if err := c.ensureSession(ctx); err != nil {
		return ledger.Entry{}, PendingUndo{}, err
	}

	if in.Quantity <= 0 {
		return ledger.Entry{}, PendingUndo{}, &ledger.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if strings.TrimSpace(string(in.ShelfID)) == "" {
		return ledger.Entry{}, PendingUndo{}, &ledger.ValidationError{Field: "shelfId", Message: "must not be blank"}
	}
	if in.UserID == "" {
		return ledger.Entry{}, PendingUndo{}, &ledger.ValidationError{Field: "userId", Message: "must not be blank"}
	}
	if in.UnitPriceCents < 0 {
		return ledger.Entry{}, PendingUndo{}, &ledger.ValidationError{Field: "unitPriceCents", Message: "must not be negative"}
	}

	method := in.PaymentMethod
	if method == "" {
		method = ledger.PayInternal
	}

	amount := -in.UnitPriceCents * int64(in.Quantity)

	// Serialize the floor check and the append per user so concurrent
	// purchases cannot both pass the check and overdraw.
	lock := c.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := c.Ledger.Balance(ctx, in.UserID)
	if err != nil {
		return ledger.Entry{}, PendingUndo{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	if balance+amount < BalanceFloorCents {
		return ledger.Entry{}, PendingUndo{}, &ledger.InsufficientBalanceError{
			UserID:        in.UserID,
			BalanceCents:  balance,
			RequiredCents: -amount,
			FloorCents:    BalanceFloorCents,
		}
	}

	now := c.Clock.Now()
	entry := ledger.Entry{
		ID:                     ledger.EntryID(uuid.NewString()),
		EntryType:              ledger.EntryBalance,
		Kind:                   ledger.KindPurchaseDigital,
		UserID:                 in.UserID,
		LocationID:             in.LocationID,
		ShelfID:                in.ShelfID,
		CatalogItemIDSnapshot:  in.CatalogItemID,
		Quantity:               in.Quantity,
		UnitPriceCentsSnapshot: in.UnitPriceCents,
		AmountCents:            amount,
		PaymentMethod:          method,
		IdempotencyKey:         in.IdempotencyKey,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := c.Ledger.Append(ctx, entry); err != nil {
		return ledger.Entry{}, PendingUndo{}, err
	}

	p := PendingUndo{
		OriginalEntryID: entry.ID,
		UserID:          in.UserID,
		AmountCents:     amount,
		ExpiresAt:       now.Add(c.window()),
	}

	c.mu.Lock()
	c.pending[entry.ID] = p
	c.mu.Unlock()

	return entry, p, nil
}

// =============================================================================
// UNDO
// =============================================================================

// Undo appends a compensating entry for the purchase, valid only while the
// window is open and the entry id matches a tracked pending undo. The
// original entry stays in the ledger untouched.
func (c *Coordinator) Undo(ctx context.Context, originalEntryID ledger.EntryID, userID ledger.UserID) (ledger.Entry, error) {
	if err := c.ensureSession(ctx); err != nil {
		return ledger.Entry{}, err
	}

	now := c.Clock.Now()

	c.mu.Lock()
	p, ok := c.pending[originalEntryID]
	if !ok || p.UserID != userID {
		c.mu.Unlock()
		return ledger.Entry{}, ledger.ErrNoPendingUndo
	}
	if now.After(p.ExpiresAt) {
		// Lazy GC: the window elapsed without an explicit undo.
		delete(c.pending, originalEntryID)
		c.mu.Unlock()
		return ledger.Entry{}, ledger.ErrUndoWindowExpired
	}
	// Claim the window before releasing the lock: a concurrent undo for
	// the same entry finds nothing and is a no-op. Whichever call gets
	// here first wins, exactly once.
	delete(c.pending, originalEntryID)
	c.mu.Unlock()

	comp := ledger.Entry{
		ID:             ledger.EntryID(uuid.NewString()),
		EntryType:      ledger.EntryBalance,
		Kind:           ledger.KindAdjustmentBalance,
		UserID:         userID,
		AmountCents:    -p.AmountCents, // Opposite sign: restores the debit
		IsCompensating: true,
		PaymentMethod:  ledger.PayInternal,
		Note:           fmt.Sprintf("Undo of entry %s", originalEntryID),
		IdempotencyKey: "undo-" + string(originalEntryID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := c.Ledger.Append(ctx, comp); err != nil {
		// The append never committed: hand the window back (if it has
		// not expired meanwhile) so the user can retry.
		c.mu.Lock()
		if c.Clock.Now().Before(p.ExpiresAt) {
			c.pending[originalEntryID] = p
		}
		c.mu.Unlock()
		return ledger.Entry{}, err
	}

	return comp, nil
}

// CanUndo reports whether the entry still has an open undo window.
func (c *Coordinator) CanUndo(originalEntryID ledger.EntryID) bool {
	_, ok := c.Remaining(originalEntryID)
	return ok
}

// Remaining returns the whole seconds left in the entry's undo window,
// rounded up so the UI never shows 0 while undo still succeeds. Expired
// windows are garbage-collected on lookup.
func (c *Coordinator) Remaining(originalEntryID ledger.EntryID) (int, bool) {
	now := c.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[originalEntryID]
	if !ok {
		return 0, false
	}
	if now.After(p.ExpiresAt) {
		delete(c.pending, originalEntryID)
		return 0, false
	}
	remaining := p.ExpiresAt.Sub(now)
	return int((remaining + time.Second - 1) / time.Second), true
}

// SweepExpired clears all elapsed windows and returns how many were
// closed. Transitioning to CONFIRMED_FINAL mutates nothing in the store.
func (c *Coordinator) SweepExpired() int {
	now := c.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	swept := 0
	for id, p := range c.pending {
		if now.After(p.ExpiresAt) {
			delete(c.pending, id)
			swept++
		}
	}
	return swept
}

// PendingCount returns how many undo windows are currently open.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
