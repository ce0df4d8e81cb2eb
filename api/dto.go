/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in the domain layer (purchase, reconcile); handlers
  only translate errors to HTTP status codes. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/reconcile"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PurchaseRequest records one purchase against a vending slot.
type PurchaseRequest struct {
	UserID         string `json:"userId"`
	LocationID     string `json:"locationId"`
	ShelfID        string `json:"shelfId"`
	CatalogItemID  string `json:"catalogItemId"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
	CashPayment    bool   `json:"cashPayment,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// UndoRequest reverses a purchase inside its undo window.
type UndoRequest struct {
	UserID string `json:"userId"`
}

// TopUpRequest credits a user's balance.
type TopUpRequest struct {
	UserID         string `json:"userId"`
	Kind           string `json:"kind"` // TOPUP_CASH or TOPUP_DIGITAL
	AmountCents    int64  `json:"amountCents"`
	LocationID     string `json:"locationId,omitempty"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// CashCountRequest submits an operator's counted cash for a location.
type CashCountRequest struct {
	CountedCash string `json:"countedCash"` // Decimal euros, e.g. "6.40"
	RecordedBy  string `json:"recordedBy"`
	Notes       string `json:"notes,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID                      string    `json:"id"`
	EntryType               string    `json:"entryType"`
	Kind                    string    `json:"kind"`
	UserID                  string    `json:"userId,omitempty"`
	LocationID              string    `json:"locationId,omitempty"`
	ShelfID                 string    `json:"shelfId,omitempty"`
	CatalogItemIDSnapshot   string    `json:"catalogItemIdSnapshot,omitempty"`
	Quantity                int       `json:"quantity,omitempty"`
	UnitPriceCentsSnapshot  int64     `json:"unitPriceCentsSnapshot,omitempty"`
	AmountCents             int64     `json:"amountCents"`
	AmountEuros             string    `json:"amountEuros"`
	CashAffectsExpectedCash bool      `json:"cashAffectsExpectedCash"`
	IsCompensating          bool      `json:"isCompensating"`
	PaymentMethod           string    `json:"paymentMethod"`
	Note                    string    `json:"note,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:                      string(e.ID),
		EntryType:               string(e.EntryType),
		Kind:                    string(e.Kind),
		UserID:                  string(e.UserID),
		LocationID:              string(e.LocationID),
		ShelfID:                 string(e.ShelfID),
		CatalogItemIDSnapshot:   e.CatalogItemIDSnapshot,
		Quantity:                e.Quantity,
		UnitPriceCentsSnapshot:  e.UnitPriceCentsSnapshot,
		AmountCents:             e.AmountCents,
		AmountEuros:             e.AmountEuros().StringFixed(2),
		CashAffectsExpectedCash: e.CashAffectsExpectedCash,
		IsCompensating:          e.IsCompensating,
		PaymentMethod:           string(e.PaymentMethod),
		Note:                    e.Note,
		CreatedAt:               e.CreatedAt,
	}
}

// PurchaseResponseDTO is a recorded purchase plus its undo window.
type PurchaseResponseDTO struct {
	Entry             EntryDTO  `json:"entry"`
	UndoExpiresAt     time.Time `json:"undoExpiresAt"`
	UndoSecondsLeft   int       `json:"undoSecondsLeft"`
	UndoWindowSeconds int       `json:"undoWindowSeconds"`
}

// UndoWindowDTO reports the state of a purchase's undo window.
type UndoWindowDTO struct {
	EntryID       string `json:"entryId"`
	Open          bool   `json:"open"`
	SecondsLeft   int    `json:"secondsLeft"`
}

// BalanceDTO is a user's derived balance.
type BalanceDTO struct {
	UserID        string `json:"userId"`
	BalanceCents  int64  `json:"balanceCents"`
	BalanceEuros  string `json:"balanceEuros"`
	TotalSpent    int64  `json:"totalSpentCents"`
	TotalCredited int64  `json:"totalCreditedCents"`
	EntryCount    int    `json:"entryCount"`
}

// CashCountDTO represents a reconciliation outcome.
type CashCountDTO struct {
	ID              string    `json:"id"`
	LocationID      string    `json:"locationId"`
	CountedCash     string    `json:"countedCash"`
	ExpectedCash    string    `json:"expectedCash"`
	Drift           string    `json:"drift"`
	DriftPercentage string    `json:"driftPercentage"`
	Classification  string    `json:"classification"`
	RecordedBy      string    `json:"recordedBy,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Notes           string    `json:"notes,omitempty"`
}

func toCashCountDTO(c reconcile.CashCount) CashCountDTO {
	return CashCountDTO{
		ID:              c.ID,
		LocationID:      string(c.LocationID),
		CountedCash:     c.CountedCash.StringFixed(2),
		ExpectedCash:    c.ExpectedCash.StringFixed(2),
		Drift:           c.Drift.StringFixed(2),
		DriftPercentage: c.DriftPercentage.StringFixed(4),
		Classification:  string(c.Classification),
		RecordedBy:      c.RecordedBy,
		Timestamp:       c.Timestamp,
		Notes:           c.Notes,
	}
}

// ErrorResponse is the JSON shape of all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
