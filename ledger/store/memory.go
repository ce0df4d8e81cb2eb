// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MKrabs/Snablo-app/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     []ledger.Entry // ordered by CreatedAt
	byID        map[ledger.EntryID]int
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		byID:        make(map[ledger.EntryID]int),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}

	// Binary search for insertion point keeps the slice ordered by CreatedAt
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].CreatedAt.After(entry.CreatedAt)
	})

	m.entries = append(m.entries, ledger.Entry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry

	// Re-index shifted positions
	for j := i; j < len(m.entries); j++ {
		m.byID[m.entries[j].ID] = j
	}

	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return m.entries[i], nil
}

func (m *Memory) LoadByUser(_ context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) LoadCashAffecting(_ context.Context, locationID ledger.LocationID, since time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if e.LocationID != locationID || !e.CashAffectsExpectedCash {
			continue
		}
		if !since.IsZero() && !e.CreatedAt.After(since) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Len returns the total entry count. Test helper: lets tests assert that a
// failed operation appended nothing.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
