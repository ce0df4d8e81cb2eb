package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/ledger/store"
)

func cashEntry(id string, location string, cents int64, at time.Time) ledger.Entry {
	return ledger.Entry{
		ID:                      ledger.EntryID(id),
		EntryType:               ledger.EntryCashMovement,
		Kind:                    ledger.KindTopUpCash,
		UserID:                  "user-1",
		LocationID:              ledger.LocationID(location),
		AmountCents:             cents,
		PaymentMethod:           ledger.PayCash,
		CashAffectsExpectedCash: true,
		CreatedAt:               at,
		UpdatedAt:               at,
	}
}

func TestMemory_AppendKeepsCreatedAtOrder(t *testing.T) {
	// GIVEN: Entries appended newest-first
	// WHEN: Loading by user
	// THEN: The store returns them oldest-first

	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mem.Append(ctx, cashEntry("c", "loc-1", 300, at.Add(2*time.Minute))))
	require.NoError(t, mem.Append(ctx, cashEntry("a", "loc-1", 100, at)))
	require.NoError(t, mem.Append(ctx, cashEntry("b", "loc-1", 200, at.Add(time.Minute))))

	entries, err := mem.LoadByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EntryID("a"), entries[0].ID)
	assert.Equal(t, ledger.EntryID("b"), entries[1].ID)
	assert.Equal(t, ledger.EntryID("c"), entries[2].ID)

	// Get still resolves after the insert shifted indexes
	got, err := mem.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.AmountCents)
}

func TestMemory_LoadCashAffecting_FiltersLocationAndSince(t *testing.T) {
	// GIVEN: Cash entries across two locations and times, plus one
	//        non-cash entry
	// WHEN: Loading cash-affecting entries for loc-1 after a cutoff
	// THEN: Only loc-1 cash entries strictly after the cutoff come back

	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mem.Append(ctx, cashEntry("old", "loc-1", 100, at)))
	require.NoError(t, mem.Append(ctx, cashEntry("boundary", "loc-1", 200, at.Add(time.Hour))))
	require.NoError(t, mem.Append(ctx, cashEntry("new", "loc-1", 300, at.Add(2*time.Hour))))
	require.NoError(t, mem.Append(ctx, cashEntry("other", "loc-2", 400, at.Add(3*time.Hour))))

	digital := cashEntry("digital", "loc-1", 500, at.Add(4*time.Hour))
	digital.CashAffectsExpectedCash = false
	require.NoError(t, mem.Append(ctx, digital))

	// The cutoff itself is excluded: "since" means strictly after
	entries, err := mem.LoadCashAffecting(ctx, "loc-1", at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID("new"), entries[0].ID)

	// Zero since means everything
	all, err := mem.LoadCashAffecting(ctx, "loc-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemory_IdempotencyKeyTracking(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	e := cashEntry("e1", "loc-1", 100, at)
	e.IdempotencyKey = "key-1"
	require.NoError(t, mem.Append(ctx, e))

	exists, err := mem.Exists(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = mem.Exists(ctx, "key-2")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := cashEntry("e2", "loc-1", 100, at.Add(time.Second))
	dup.IdempotencyKey = "key-1"
	assert.ErrorIs(t, mem.Append(ctx, dup), ledger.ErrDuplicateIdempotencyKey)
}
