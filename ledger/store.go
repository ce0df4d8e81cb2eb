/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the interface between the domain logic and the record store.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the remote record-store of the surrounding system satisfies
  the same contract.

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - NO Update() or Delete() methods exist
  Corrections are made via compensating entries, not edits.

ORDERING:
  CreatedAt establishes a total order sufficient for history display and
  for computing "entries since last settlement". Each entry's CreatedAt is
  assigned before insertion and an entry is never visible to a read before
  it has a final timestamp: an append either fully succeeds (visible to
  subsequent queries) or fully fails (nothing written).

IDEMPOTENCY:
  Writes may carry an idempotency key. If the key already exists the write
  is rejected, which protects against network retries and double-taps.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the
	// entry's idempotency key already exists.
	// This is the ONLY write operation.
	Append(ctx context.Context, entry Entry) error

	// Get returns a single entry by id, or ErrEntryNotFound.
	Get(ctx context.Context, id EntryID) (Entry, error)

	// LoadByUser returns all entries for a user, ordered by CreatedAt
	// ascending.
	LoadByUser(ctx context.Context, userID UserID) ([]Entry, error)

	// LoadCashAffecting returns the cash-affecting entries for a location
	// created strictly after 'since', ordered by CreatedAt ascending.
	// A zero 'since' means all entries.
	LoadCashAffecting(ctx context.Context, locationID LocationID, since time.Time) ([]Entry, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
