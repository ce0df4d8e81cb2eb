/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Higher-level packages (purchase, reconcile, api) wrap these errors
  with additional context.

ERROR CATEGORIES:
  1. Validation errors - caller's fault, no write attempted
  2. Store errors - append/query failed, surfaced as-is
  3. Auth errors - no valid session and refresh failed

PROPAGATION POLICY:
  All errors are returned as explicit values, never as fire-and-forget
  side effects. A caller is always told whether a ledger mutation actually
  committed before it updates any user-visible balance.

USAGE:
    if errors.Is(err, ledger.ErrUndoWindowExpired) {
        // leave the purchase and its debit standing
    }

SEE ALSO:
  - ledger.go: Uses these errors
  - purchase/coordinator.go: Wraps these errors with purchase context
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrInsufficientBalance is returned when a purchase would push the
	// balance below the floor.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoPendingUndo is returned when undoing an entry that has no
	// tracked undo window.
	ErrNoPendingUndo = errors.New("no pending undo")

	// ErrUndoWindowExpired is returned when undoing after the window closed.
	// The purchase, and its debit, remain standing.
	ErrUndoWindowExpired = errors.New("undo window expired")

	// ErrUnauthenticated is returned when no valid session exists and
	// refresh failed or was not attempted.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports invalid caller input. No write was attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InsufficientBalanceError provides details about a floor violation.
type InsufficientBalanceError struct {
	UserID        UserID
	BalanceCents  int64
	RequiredCents int64
	FloorCents    int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: have %d cents, purchase needs %d, floor %d",
		e.UserID, e.BalanceCents, e.RequiredCents, e.FloorCents)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a store or infrastructure failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrNoPendingUndo) ||
		errors.Is(err, ErrUndoWindowExpired)
}

// IsAuthError returns true if the error indicates a missing or expired session.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsNotFound returns true if the error indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
