/*
engine.go - Reconciliation computation

PURPOSE:
  Given an operator's counted-cash figure, derive expected cash from the
  ledger, compute drift, classify it, and persist the resulting CashCount.

SETTLEMENT WINDOW:
  Expected cash is computed over cash-affecting entries created strictly
  after the previous CashCount's timestamp for that location (all entries
  for the first count). The CashCount itself is the settlement marker -
  there is no write-back onto ledger entries, which stay immutable.

FAILURE:
  The only internal failure modes are store errors. Negative counted cash
  is rejected up front as a validation error, before any read or write.

SEE ALSO:
  - types.go: CashCount, Classification, thresholds
  - ledger/ledger.go: CashAffectingSince query
*/
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MKrabs/Snablo-app/ledger"
)

var oneHundred = decimal.NewFromInt(100)

// =============================================================================
// EXPECTED CASH - Pure fold over cash-affecting entries
// =============================================================================

// ComputeExpectedCash sums the cash-affecting amounts for a location and
// converts to euros. Entries for other locations or without the
// cash-affecting flag are ignored even when they share the location.
func ComputeExpectedCash(entries []ledger.Entry, locationID ledger.LocationID) decimal.Decimal {
	var cents int64
	for _, e := range entries {
		if e.LocationID == locationID && e.CashAffectsExpectedCash {
			cents += e.AmountCents
		}
	}
	return decimal.NewFromInt(cents).Div(oneHundred)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs reconciliations against the ledger and records the outcome.
type Engine struct {
	Ledger ledger.Ledger
	Counts CashCountStore
	Clock  ledger.Clock
}

func NewEngine(l ledger.Ledger, counts CashCountStore, clock ledger.Clock) *Engine {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Engine{Ledger: l, Counts: counts, Clock: clock}
}

// Reconcile computes and persists a CashCount for the location.
//
// countedCash is the operator input in euros; negative values are rejected
// before any read or write.
func (e *Engine) Reconcile(ctx context.Context, locationID ledger.LocationID, countedCash decimal.Decimal, recordedBy, notes string) (CashCount, error) {
	if locationID == "" {
		return CashCount{}, &ledger.ValidationError{Field: "locationId", Message: "must not be blank"}
	}
	if countedCash.IsNegative() {
		return CashCount{}, &ledger.ValidationError{Field: "countedCash", Message: "must not be negative"}
	}

	since, _, err := e.Counts.LastCashCountTime(ctx, locationID)
	if err != nil {
		return CashCount{}, fmt.Errorf("failed to load last cash count: %w", err)
	}

	entries, err := e.Ledger.CashAffectingSince(ctx, locationID, since)
	if err != nil {
		return CashCount{}, fmt.Errorf("failed to load cash-affecting entries: %w", err)
	}

	count := buildCashCount(locationID, countedCash, ComputeExpectedCash(entries, locationID))
	count.ID = uuid.NewString()
	count.RecordedBy = recordedBy
	count.Notes = notes
	count.Timestamp = e.Clock.Now()
	count.CreatedAt = count.Timestamp

	if err := e.Counts.SaveCashCount(ctx, count); err != nil {
		return CashCount{}, fmt.Errorf("failed to save cash count: %w", err)
	}
	return count, nil
}

// History returns the location's past counts, oldest first.
func (e *Engine) History(ctx context.Context, locationID ledger.LocationID) ([]CashCount, error) {
	return e.Counts.ListCashCounts(ctx, locationID)
}

// buildCashCount derives drift, percentage, and classification.
func buildCashCount(locationID ledger.LocationID, counted, expected decimal.Decimal) CashCount {
	drift := counted.Sub(expected)

	// Division by zero guard: no cash-affecting activity classifies GOOD
	// regardless of the counted amount.
	pct := decimal.Zero
	if expected.IsPositive() {
		pct = drift.Abs().Div(expected).Mul(oneHundred)
	}

	return CashCount{
		LocationID:      locationID,
		CountedCash:     counted,
		ExpectedCash:    expected,
		Drift:           drift,
		DriftPercentage: pct,
		Classification:  Classify(pct),
	}
}
