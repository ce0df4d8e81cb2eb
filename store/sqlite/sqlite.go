/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and reconcile.CashCountStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics:
  - No UPDATE statements on the ledger_entries table
  - No DELETE statements on the ledger_entries table
  - Corrections via compensating entries only

KEY TABLES:
  ledger_entries: Immutable ledger of all balance changes and cash movements
  cash_counts:    Reconciliation outcomes, one row per operator count

INDEXES:
  - idx_entries_user:          Balance projection (hot path)
  - idx_entries_location_cash: Expected-cash fold per location
  - idx_entries_idempotency:   Duplicate-append rejection
  - idx_cash_counts_location:  Count history + last-settlement lookup

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/snablo.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  led := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/reconcile"
)

// Store implements ledger.Store and reconcile.CashCountStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		entry_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		user_id TEXT,
		location_id TEXT,
		shelf_id TEXT,
		catalog_item_id_snapshot TEXT,
		quantity INTEGER NOT NULL DEFAULT 0,
		unit_price_cents_snapshot INTEGER NOT NULL DEFAULT 0,
		amount_cents INTEGER NOT NULL,
		cash_affects_expected_cash BOOLEAN NOT NULL DEFAULT FALSE,
		is_compensating BOOLEAN NOT NULL DEFAULT FALSE,
		payment_method TEXT NOT NULL,
		note TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user
		ON ledger_entries(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_location_cash
		ON ledger_entries(location_id, created_at)
		WHERE cash_affects_expected_cash;
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_created_at
		ON ledger_entries(created_at);

	-- Cash counts (reconciliation history)
	CREATE TABLE IF NOT EXISTS cash_counts (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		counted_cash TEXT NOT NULL,
		expected_cash TEXT NOT NULL,
		drift TEXT NOT NULL,
		drift_percentage TEXT NOT NULL,
		classification TEXT NOT NULL,
		recorded_by TEXT,
		timestamp TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cash_counts_location
		ON cash_counts(location_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER ENTRIES (ledger.Store interface)
// =============================================================================

const entryColumns = `id, entry_type, kind, user_id, location_id, shelf_id,
	catalog_item_id_snapshot, quantity, unit_price_cents_snapshot, amount_cents,
	cash_affects_expected_cash, is_compensating, payment_method, note,
	idempotency_key, created_at, updated_at`

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.EntryType,
		e.Kind,
		nullString(string(e.UserID)),
		nullString(string(e.LocationID)),
		nullString(string(e.ShelfID)),
		nullString(e.CatalogItemIDSnapshot),
		e.Quantity,
		e.UnitPriceCentsSnapshot,
		e.AmountCents,
		e.CashAffectsExpectedCash,
		e.IsCompensating,
		e.PaymentMethod,
		nullString(e.Note),
		nullString(e.IdempotencyKey),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if isIdempotencyKeyConflict(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return nil
}

// Get returns a single entry by id.
func (s *Store) Get(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return entries[0], nil
}

// LoadByUser returns all entries for a user, oldest first.
func (s *Store) LoadByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryEntries(ctx, query, userID)
}

// LoadCashAffecting returns a location's cash-affecting entries created
// after 'since', oldest first.
func (s *Store) LoadCashAffecting(ctx context.Context, locationID ledger.LocationID, since time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE location_id = ? AND cash_affects_expected_cash AND created_at > ?
		ORDER BY created_at ASC, id ASC
	`
	sinceStr := ""
	if !since.IsZero() {
		sinceStr = since.UTC().Format(time.RFC3339Nano)
	}
	return s.queryEntries(ctx, query, locationID, sinceStr)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e             ledger.Entry
		userID        sql.NullString
		locationID    sql.NullString
		shelfID       sql.NullString
		catalogItemID sql.NullString
		note          sql.NullString
		idemKey       sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&e.ID, &e.EntryType, &e.Kind, &userID, &locationID, &shelfID,
		&catalogItemID, &e.Quantity, &e.UnitPriceCentsSnapshot, &e.AmountCents,
		&e.CashAffectsExpectedCash, &e.IsCompensating, &e.PaymentMethod, &note,
		&idemKey, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.UserID = ledger.UserID(userID.String)
	e.LocationID = ledger.LocationID(locationID.String)
	e.ShelfID = ledger.ShelfID(shelfID.String)
	e.CatalogItemIDSnapshot = catalogItemID.String
	e.Note = note.String
	e.IdempotencyKey = idemKey.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return e, nil
}

// =============================================================================
// CASH COUNTS (reconcile.CashCountStore interface)
// =============================================================================

// SaveCashCount persists a reconciliation outcome.
func (s *Store) SaveCashCount(ctx context.Context, c reconcile.CashCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cash_counts
		(id, location_id, counted_cash, expected_cash, drift, drift_percentage,
		 classification, recorded_by, timestamp, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.LocationID,
		c.CountedCash.String(),
		c.ExpectedCash.String(),
		c.Drift.String(),
		c.DriftPercentage.String(),
		c.Classification,
		nullString(c.RecordedBy),
		c.Timestamp.UTC().Format(time.RFC3339Nano),
		nullString(c.Notes),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save cash count: %w", err)
	}
	return nil
}

// ListCashCounts returns a location's counts, oldest first.
func (s *Store) ListCashCounts(ctx context.Context, locationID ledger.LocationID) ([]reconcile.CashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, location_id, counted_cash, expected_cash, drift,
		       drift_percentage, classification, recorded_by, timestamp, notes, created_at
		FROM cash_counts
		WHERE location_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash counts: %w", err)
	}
	defer rows.Close()

	var counts []reconcile.CashCount
	for rows.Next() {
		var (
			c          reconcile.CashCount
			counted    string
			expected   string
			drift      string
			driftPct   string
			recordedBy sql.NullString
			notes      sql.NullString
			timestamp  string
			createdAt  string
		)
		if err := rows.Scan(&c.ID, &c.LocationID, &counted, &expected, &drift,
			&driftPct, &c.Classification, &recordedBy, &timestamp, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cash count: %w", err)
		}
		c.CountedCash = mustDecimal(counted)
		c.ExpectedCash = mustDecimal(expected)
		c.Drift = mustDecimal(drift)
		c.DriftPercentage = mustDecimal(driftPct)
		c.RecordedBy = recordedBy.String
		c.Notes = notes.String
		c.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// LastCashCountTime returns the timestamp of the most recent count for a
// location.
func (s *Store) LastCashCountTime(ctx context.Context, locationID ledger.LocationID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var timestamp string
	err := s.db.QueryRowContext(ctx,
		"SELECT timestamp FROM cash_counts WHERE location_id = ? ORDER BY timestamp DESC LIMIT 1",
		locationID,
	).Scan(&timestamp)

	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cash count timestamp: %w", err)
	}
	return t, true, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// isIdempotencyKeyConflict matches only the idempotency-key unique index.
// Other unique violations (a reused entry id, say) surface as store errors.
func isIdempotencyKeyConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "idempotency_key") &&
		(strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key"))
}
