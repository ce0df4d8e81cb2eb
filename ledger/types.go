/*
Package ledger provides the append-only financial core of the snack tab.

PURPOSE:
  This package contains the domain types and algorithms for the tab ledger.
  Every purchase, top-up, refund, and adjustment is an immutable Entry.
  A user's balance and a location's expected cash are always computed by
  folding entries - there is no separate counter that can get out of sync.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable ledger record of a single monetary event
  - Kind: Semantic classification of an entry (purchase, top-up, ...)
  - PaymentMethod: How money actually moved (cash, PayPal, internal)
  - UserID/LocationID/EntryID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only compensated
  2. Precision: Amounts are signed integer cents; euro conversion uses
     decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing user/location IDs
  4. Provenance: Purchases snapshot price and catalog item at time of sale,
     so later catalog changes never retroactively alter history

USAGE:
  entry := ledger.Entry{
      Kind:        ledger.KindPurchaseDigital,
      EntryType:   ledger.EntryBalance,
      UserID:      "usr-123",
      AmountCents: -150,
  }

SEE ALSO:
  - store.go: Persistence interface (append-only)
  - balance.go: Balance projection from entries
  - ledger.go: Idempotency-checking wrapper around Store
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type UserID string
type LocationID string
type ShelfID string

// =============================================================================
// ENTRY TYPE - Balance-affecting vs. physical-cash-affecting
// =============================================================================

// EntryType is the broad category of an entry. A cash top-up is conceptually
// both a balance credit and a cash event; the model records one primary type
// plus the explicit CashAffectsExpectedCash flag.
type EntryType string

const (
	EntryBalance      EntryType = "BALANCE_ENTRY"
	EntryCashMovement EntryType = "CASH_MOVEMENT"
)

// =============================================================================
// KIND - Semantic classification
// =============================================================================

// Kind classifies an entry semantically. Informational for projections:
// the balance fold treats all kinds uniformly via AmountCents.
type Kind string

const (
	KindPurchaseDigital    Kind = "PURCHASE_DIGITAL"    // Spend against digital balance
	KindPurchaseCashLogged Kind = "PURCHASE_CASH_LOGGED" // Paid in physical cash at the shelf
	KindTopUpCash          Kind = "TOPUP_CASH"           // Cash into the drawer, credit to balance
	KindTopUpDigital       Kind = "TOPUP_DIGITAL"        // PayPal/Wero credit, no cash moved
	KindRefundCash         Kind = "REFUND_CASH"
	KindRefundDigital      Kind = "REFUND_DIGITAL"
	KindAdjustmentBalance  Kind = "ADJUSTMENT_BALANCE" // Manual correction / compensating undo
	KindAdjustmentCash     Kind = "ADJUSTMENT_CASH"
)

// IsTopUp reports whether the kind is one of the two top-up flows.
func (k Kind) IsTopUp() bool {
	return k == KindTopUpCash || k == KindTopUpDigital
}

// =============================================================================
// PAYMENT METHOD
// =============================================================================

type PaymentMethod string

const (
	PayCash     PaymentMethod = "CASH"
	PayPayPal   PaymentMethod = "PAYPAL"
	PayWero     PaymentMethod = "WERO"
	PayInternal PaymentMethod = "INTERNAL_BALANCE"
)

// =============================================================================
// ENTRY - Immutable ledger record (the sole source of truth)
// =============================================================================

// Entry is a single monetary event.
//
// INVARIANT: once persisted, AmountCents, UserID, LocationID, and
// CashAffectsExpectedCash are never mutated. Corrections are always new
// entries (IsCompensating / ADJUSTMENT_*), never edits.
type Entry struct {
	ID        EntryID
	EntryType EntryType
	Kind      Kind

	// UserID is whose balance is affected. Empty for pure location-level
	// cash entries.
	UserID UserID

	// LocationID is required when CashAffectsExpectedCash is true.
	LocationID LocationID

	// Purchase provenance, captured at the time of sale.
	ShelfID                ShelfID
	CatalogItemIDSnapshot  string
	Quantity               int
	UnitPriceCentsSnapshot int64

	// AmountCents is signed: negative reduces balance (spend), positive
	// increases it (top-up, refund, compensating undo).
	AmountCents int64

	// CashAffectsExpectedCash is true only for entries backed by physical
	// cash changing hands at a location. Never true for digital-only entries.
	CashAffectsExpectedCash bool

	// IsCompensating marks an entry that reverses an earlier one. The
	// original entry id is recorded in Note.
	IsCompensating bool

	PaymentMethod PaymentMethod
	Note          string

	// IdempotencyKey guards against duplicate appends from retries.
	IdempotencyKey string

	// CreatedAt is the ordering key for all derivations.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AmountEuros converts the signed cent amount to euros.
func (e Entry) AmountEuros() decimal.Decimal {
	return decimal.NewFromInt(e.AmountCents).Div(decimal.NewFromInt(100))
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock supplies wall-clock time. Injectable so undo windows and session
// expiry are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// =============================================================================
// EVENTS - Hook for downstream consumers
// =============================================================================

// EventPublisher receives every successfully appended entry. Implementations
// must not block appends on delivery problems; failures are reported upward
// and logged, never retried by the ledger.
type EventPublisher interface {
	Publish(ctx context.Context, entry Entry) error
}
