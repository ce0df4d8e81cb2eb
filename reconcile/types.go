/*
Package reconcile compares physically counted cash against the ledger.

PURPOSE:
  Operators periodically count the cash drawer at a location. This package
  computes what the ledger says *should* be in the drawer (the sum of
  cash-affecting entries since the last count), the drift between the two,
  and a traffic-light classification of that drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - CashCount: The persisted outcome of one reconciliation event
  - Classification: GOOD / WARN / BAD based on drift percentage
  - CashCountStore: Persistence for the count history

CLASSIFICATION THRESHOLDS (applied to |drift| / expected * 100):
  < 5.0          GOOD
  5.0 .. 10.0    WARN   (both boundaries inclusive)
  > 10.0         BAD

  When no cash-affecting activity has occurred (expected == 0) the drift
  percentage is defined as 0 and the count classifies GOOD regardless of
  the counted amount. Product decision, not an accident.

PRECISION:
  Cash amounts here are euros, not cents, because the operator types a
  euro figure. decimal.Decimal keeps the division and percentage math
  exact; there is no float anywhere in the reconciliation path.

SEE ALSO:
  - engine.go: The reconciliation computation
  - ledger/types.go: CashAffectsExpectedCash flag on entries
*/
package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MKrabs/Snablo-app/ledger"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Classification string

const (
	DriftGood Classification = "GOOD"
	DriftWarn Classification = "WARN"
	DriftBad  Classification = "BAD"
)

var (
	warnThreshold = decimal.NewFromInt(5)
	badThreshold  = decimal.NewFromInt(10)
)

// Classify maps a drift percentage to a Classification.
// Exactly 5.0 is WARN (the GOOD test is strict-less-than); exactly 10.0 is
// still WARN (the BAD test is strict-greater-than).
func Classify(driftPercentage decimal.Decimal) Classification {
	switch {
	case driftPercentage.LessThan(warnThreshold):
		return DriftGood
	case driftPercentage.LessThanOrEqual(badThreshold):
		return DriftWarn
	default:
		return DriftBad
	}
}

// =============================================================================
// CASH COUNT - Derived + persisted outcome of one reconciliation event
// =============================================================================

// CashCount records a single reconciliation submission. Created once, never
// mutated; subsequent counts form a history ordered by Timestamp.
type CashCount struct {
	ID         string
	LocationID ledger.LocationID

	// CountedCash is the operator input, in euros.
	CountedCash decimal.Decimal

	// ExpectedCash is computed from the ledger's cash-affecting entries
	// since the previous count, in euros.
	ExpectedCash decimal.Decimal

	// Drift = CountedCash - ExpectedCash. Negative is a shortfall,
	// positive a surplus.
	Drift decimal.Decimal

	// DriftPercentage = |Drift| / ExpectedCash * 100, or 0 when
	// ExpectedCash is not positive.
	DriftPercentage decimal.Decimal

	Classification Classification

	RecordedBy string
	Timestamp  time.Time
	Notes      string
	CreatedAt  time.Time
}

// =============================================================================
// CASH COUNT STORE - Persistence for the count history
// =============================================================================

// CashCountStore persists reconciliation outcomes. Also append-only: a count
// is never edited after the fact.
type CashCountStore interface {
	// SaveCashCount persists a count.
	SaveCashCount(ctx context.Context, count CashCount) error

	// ListCashCounts returns a location's counts ordered by Timestamp
	// ascending.
	ListCashCounts(ctx context.Context, locationID ledger.LocationID) ([]CashCount, error)

	// LastCashCountTime returns the Timestamp of the most recent count for
	// the location. ok is false when no count exists yet.
	LastCashCountTime(ctx context.Context, locationID ledger.LocationID) (t time.Time, ok bool, err error)
}
