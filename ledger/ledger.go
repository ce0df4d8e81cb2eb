/*
ledger.go - Append-only entry log

PURPOSE:
  The Ledger is the immutable source of truth for all balance changes and
  cash movements. Balance and expected cash are always computed by folding
  entries - there is no separate "balance" field that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every balance change is traceable with full context
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  If a mistake is made, you don't edit the entry. Instead:
  1. Create a compensating entry (opposite sign, IsCompensating=true)
  2. Both original and compensation remain in the ledger
  3. Net effect is correction, but history is preserved

EXAMPLE FLOW:
  1. User tops up 10 EUR in cash:  TOPUP_CASH        +1000
  2. Buys a 1.50 EUR snack:        PURCHASE_DIGITAL   -150
  3. Taps undo within the window:  ADJUSTMENT_BALANCE +150 (compensating)

  Balance ledger: [+1000, -150, +150] = 10 EUR

SEE ALSO:
  - store.go: Low-level persistence interface
  - purchase/coordinator.go: Purchase + undo orchestration on top of this
*/
package ledger

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

// Ledger is the source of truth for all balance changes.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
//   - Auditable: Every balance change is traceable.
//
// Corrections are made via compensating entries, not edits.
type Ledger interface {
	// Append adds an entry. Fails if its idempotency key exists.
	// This is the ONLY write operation.
	Append(ctx context.Context, entry Entry) error

	// Entry returns a single entry by id. Read-only.
	Entry(ctx context.Context, id EntryID) (Entry, error)

	// History returns all entries for a user, chronologically. Read-only.
	History(ctx context.Context, userID UserID) ([]Entry, error)

	// CashAffectingSince returns a location's cash-affecting entries created
	// after 'since'. Read-only.
	CashAffectingSince(ctx context.Context, locationID LocationID, since time.Time) ([]Entry, error)

	// Balance computes a user's balance in cents.
	// This is a derived value, computed from entries.
	Balance(ctx context.Context, userID UserID) (int64, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store

	// Publisher, when set, receives every appended entry. Delivery failures
	// are logged, never propagated: the append has already committed.
	Publisher EventPublisher
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, entry Entry) error {
	if entry.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, entry.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	if err := l.Store.Append(ctx, entry); err != nil {
		return err
	}
	if l.Publisher != nil {
		if err := l.Publisher.Publish(ctx, entry); err != nil {
			log.Printf("[Ledger] Failed to publish entry %s: %v", entry.ID, err)
		}
	}
	return nil
}

func (l *DefaultLedger) Entry(ctx context.Context, id EntryID) (Entry, error) {
	return l.Store.Get(ctx, id)
}

func (l *DefaultLedger) History(ctx context.Context, userID UserID) ([]Entry, error) {
	return l.Store.LoadByUser(ctx, userID)
}

func (l *DefaultLedger) CashAffectingSince(ctx context.Context, locationID LocationID, since time.Time) ([]Entry, error) {
	return l.Store.LoadCashAffecting(ctx, locationID, since)
}

func (l *DefaultLedger) Balance(ctx context.Context, userID UserID) (int64, error) {
	entries, err := l.Store.LoadByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return ComputeBalance(entries), nil
}
