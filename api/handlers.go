/*
handlers.go - HTTP API handlers for the tab ledger core

PURPOSE:
  Exposes the ledger/reconciliation core via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Purchases:
    POST   /api/purchases                       Record purchase (opens undo window)
    POST   /api/purchases/{id}/undo             Compensating undo (within window)
    GET    /api/purchases/{id}/undo-window      Remaining undo seconds

  Top-ups:
    POST   /api/topups                          Cash or digital top-up

  Users:
    GET    /api/users/{id}/balance              Derived balance
    GET    /api/users/{id}/history              Entry history, newest first

  Reconciliation:
    POST   /api/locations/{id}/cashcounts       Submit a counted-cash figure
    GET    /api/locations/{id}/cashcounts       Count history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: No valid session and refresh failed
  - 404: Entry not found
  - 409: Conflict (idempotency, no pending undo)
  - 410: Undo window expired
  - 500: Store/internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/metrics"
	"github.com/MKrabs/Snablo-app/purchase"
	"github.com/MKrabs/Snablo-app/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     ledger.Ledger
	Purchases  *purchase.Coordinator
	Reconciler *reconcile.Engine
}

// NewHandler creates a new handler.
func NewHandler(l ledger.Ledger, purchases *purchase.Coordinator, reconciler *reconcile.Engine) *Handler {
	return &Handler{Ledger: l, Purchases: purchases, Reconciler: reconciler}
}

// =============================================================================
// PURCHASES
// =============================================================================

// RecordPurchase handles POST /api/purchases.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := purchase.PurchaseInput{
		UserID:         ledger.UserID(req.UserID),
		LocationID:     ledger.LocationID(req.LocationID),
		ShelfID:        ledger.ShelfID(req.ShelfID),
		CatalogItemID:  req.CatalogItemID,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
		PaymentMethod:  ledger.PaymentMethod(req.PaymentMethod),
		IdempotencyKey: req.IdempotencyKey,
	}

	if req.CashPayment {
		entry, err := h.Purchases.RecordCashPurchase(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.EntriesAppended.WithLabelValues(string(entry.Kind)).Inc()
		writeJSON(w, http.StatusCreated, toEntryDTO(entry))
		return
	}

	entry, pending, err := h.Purchases.RecordPurchase(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.EntriesAppended.WithLabelValues(string(entry.Kind)).Inc()

	window := h.Purchases.UndoWindow
	if window <= 0 {
		window = purchase.DefaultUndoWindow
	}

	seconds, _ := h.Purchases.Remaining(entry.ID)
	writeJSON(w, http.StatusCreated, PurchaseResponseDTO{
		Entry:             toEntryDTO(entry),
		UndoExpiresAt:     pending.ExpiresAt,
		UndoSecondsLeft:   seconds,
		UndoWindowSeconds: int(window.Seconds()),
	})
}

// UndoPurchase handles POST /api/purchases/{id}/undo.
func (h *Handler) UndoPurchase(w http.ResponseWriter, r *http.Request) {
	entryID := ledger.EntryID(chi.URLParam(r, "id"))

	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	comp, err := h.Purchases.Undo(r.Context(), entryID, ledger.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.UndosRecorded.Inc()
	metrics.EntriesAppended.WithLabelValues(string(comp.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toEntryDTO(comp))
}

// UndoWindow handles GET /api/purchases/{id}/undo-window.
func (h *Handler) UndoWindow(w http.ResponseWriter, r *http.Request) {
	entryID := ledger.EntryID(chi.URLParam(r, "id"))
	seconds, open := h.Purchases.Remaining(entryID)
	writeJSON(w, http.StatusOK, UndoWindowDTO{
		EntryID:     string(entryID),
		Open:        open,
		SecondsLeft: seconds,
	})
}

// =============================================================================
// TOP-UPS
// =============================================================================

// RecordTopUp handles POST /api/topups.
func (h *Handler) RecordTopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry, err := h.Purchases.RecordTopUp(r.Context(), purchase.TopUpInput{
		UserID:         ledger.UserID(req.UserID),
		Kind:           ledger.Kind(req.Kind),
		AmountCents:    req.AmountCents,
		LocationID:     ledger.LocationID(req.LocationID),
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.EntriesAppended.WithLabelValues(string(entry.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// USERS
// =============================================================================

// GetBalance handles GET /api/users/{id}/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load entries", err)
		return
	}

	s := ledger.Summarize(entries)
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:        string(userID),
		BalanceCents:  s.BalanceCents,
		BalanceEuros:  decimal.NewFromInt(s.BalanceCents).Div(decimal.NewFromInt(100)).StringFixed(2),
		TotalSpent:    s.TotalSpent,
		TotalCredited: s.TotalCredited,
		EntryCount:    s.EntryCount,
	})
}

// GetHistory handles GET /api/users/{id}/history. Newest first, for display.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load entries", err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		dtos = append(dtos, toEntryDTO(entries[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// RecordCashCount handles POST /api/locations/{id}/cashcounts.
func (h *Handler) RecordCashCount(w http.ResponseWriter, r *http.Request) {
	locationID := ledger.LocationID(chi.URLParam(r, "id"))

	var req CashCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	counted, err := decimal.NewFromString(req.CountedCash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid countedCash", err)
		return
	}

	count, err := h.Reconciler.Reconcile(r.Context(), locationID, counted, req.RecordedBy, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.CashCountsRecorded.WithLabelValues(string(count.Classification)).Inc()
	writeJSON(w, http.StatusCreated, toCashCountDTO(count))
}

// ListCashCounts handles GET /api/locations/{id}/cashcounts.
func (h *Handler) ListCashCounts(w http.ResponseWriter, r *http.Request) {
	locationID := ledger.LocationID(chi.URLParam(r, "id"))

	counts, err := h.Reconciler.History(r.Context(), locationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load cash counts", err)
		return
	}

	dtos := make([]CashCountDTO, 0, len(counts))
	for _, c := range counts {
		dtos = append(dtos, toCashCountDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUndoWindowExpired):
		writeError(w, http.StatusGone, "undo window expired", nil)
	case errors.Is(err, ledger.ErrNoPendingUndo):
		writeError(w, http.StatusConflict, "no pending undo", nil)
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "duplicate request", nil)
	case ledger.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
