/*
topup.go - Balance top-ups

PURPOSE:
  Records the two top-up flows:
    TOPUP_CASH     physical cash into the location's drawer; credits the
                   balance AND raises the location's expected cash
    TOPUP_DIGITAL  PayPal/Wero credit; balance only, no cash moved

  A cash top-up without a location is rejected - expected-cash tracking
  needs to know which drawer the money went into.

SEE ALSO:
  - coordinator.go: Session gate and entry construction for purchases
  - reconcile/engine.go: Where cash-affecting entries end up mattering
*/
package purchase

import (
	"context"

	"github.com/google/uuid"

	"github.com/MKrabs/Snablo-app/ledger"
)

// TopUpInput describes one top-up.
type TopUpInput struct {
	UserID         ledger.UserID
	Kind           ledger.Kind // KindTopUpCash or KindTopUpDigital
	AmountCents    int64       // Positive
	LocationID     ledger.LocationID
	Note           string
	IdempotencyKey string
}

// RecordTopUp appends a credit entry for the user.
func (c *Coordinator) RecordTopUp(ctx context.Context, in TopUpInput) (ledger.Entry, error) {
	if err := c.ensureSession(ctx); err != nil {
		return ledger.Entry{}, err
	}

	if !in.Kind.IsTopUp() {
		return ledger.Entry{}, &ledger.ValidationError{Field: "kind", Message: "must be a top-up kind"}
	}
	if in.AmountCents <= 0 {
		return ledger.Entry{}, &ledger.ValidationError{Field: "amountCents", Message: "must be positive"}
	}
	if in.UserID == "" {
		return ledger.Entry{}, &ledger.ValidationError{Field: "userId", Message: "must not be blank"}
	}

	cash := in.Kind == ledger.KindTopUpCash
	if cash && in.LocationID == "" {
		return ledger.Entry{}, &ledger.ValidationError{Field: "locationId", Message: "required for cash top-ups"}
	}

	method := ledger.PayInternal
	if cash {
		method = ledger.PayCash
	}

	now := c.Clock.Now()
	entry := ledger.Entry{
		ID:                      ledger.EntryID(uuid.NewString()),
		EntryType:               ledger.EntryBalance,
		Kind:                    in.Kind,
		UserID:                  in.UserID,
		LocationID:              in.LocationID,
		AmountCents:             in.AmountCents,
		CashAffectsExpectedCash: cash,
		PaymentMethod:           method,
		Note:                    in.Note,
		IdempotencyKey:          in.IdempotencyKey,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := c.Ledger.Append(ctx, entry); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

// RecordCashPurchase logs a purchase paid directly in physical cash at the
// shelf. The amount is negative like any purchase, and the entry is
// cash-affecting, so it participates in the location's expected-cash fold.
func (c *Coordinator) RecordCashPurchase(ctx context.Context, in PurchaseInput) (ledger.Entry, error) {
	if err := c.ensureSession(ctx); err != nil {
		return ledger.Entry{}, err
	}

	if in.Quantity <= 0 {
		return ledger.Entry{}, &ledger.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if in.LocationID == "" {
		return ledger.Entry{}, &ledger.ValidationError{Field: "locationId", Message: "required for cash-logged purchases"}
	}
	if in.UnitPriceCents <= 0 {
		return ledger.Entry{}, &ledger.ValidationError{Field: "unitPriceCents", Message: "must be positive"}
	}

	now := c.Clock.Now()
	entry := ledger.Entry{
		ID:                      ledger.EntryID(uuid.NewString()),
		EntryType:               ledger.EntryCashMovement,
		Kind:                    ledger.KindPurchaseCashLogged,
		UserID:                  in.UserID,
		LocationID:              in.LocationID,
		ShelfID:                 in.ShelfID,
		CatalogItemIDSnapshot:   in.CatalogItemID,
		Quantity:                in.Quantity,
		UnitPriceCentsSnapshot:  in.UnitPriceCents,
		AmountCents:             -in.UnitPriceCents * int64(in.Quantity),
		CashAffectsExpectedCash: true,
		PaymentMethod:           ledger.PayCash,
		IdempotencyKey:          in.IdempotencyKey,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := c.Ledger.Append(ctx, entry); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}
