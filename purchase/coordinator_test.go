package purchase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/ledger/store"
	"github.com/MKrabs/Snablo-app/purchase"
	"github.com/MKrabs/Snablo-app/session"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator(t *testing.T) (*purchase.Coordinator, *store.Memory, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory()

	sessions := session.NewLifecycle(clock)
	sessions.Set(session.Session{
		User: session.User{ID: "user-1", Name: "Test User", Role: session.RoleUser},
		Token: session.AuthToken{
			Token:     "test-token",
			ExpiresAt: clock.now.Add(24 * time.Hour),
		},
	})

	return purchase.NewCoordinator(ledger.NewLedger(mem), sessions, clock), mem, clock
}

func snackPurchase(user string) purchase.PurchaseInput {
	return purchase.PurchaseInput{
		UserID:         ledger.UserID(user),
		LocationID:     "loc-1",
		ShelfID:        "shelf-1",
		CatalogItemID:  "item-cola",
		UnitPriceCents: 150,
		Quantity:       1,
	}
}

func topUp(user string, cents int64) purchase.TopUpInput {
	return purchase.TopUpInput{
		UserID:      ledger.UserID(user),
		Kind:        ledger.KindTopUpCash,
		AmountCents: cents,
		LocationID:  "loc-1",
	}
}

// =============================================================================
// RECORD PURCHASE
// =============================================================================

func TestRecordPurchase_AppendsDebitAndOpensWindow(t *testing.T) {
	// GIVEN: A user with 10 EUR balance
	// WHEN: Buying two 1.50 EUR snacks
	// THEN: One -3.00 EUR entry lands and a 10-second undo window opens

	ctx := context.Background()
	c, mem, clock := newTestCoordinator(t)
	_, err := c.RecordTopUp(ctx, topUp("user-1", 1000))
	require.NoError(t, err)

	in := snackPurchase("user-1")
	in.Quantity = 2
	entry, pending, err := c.RecordPurchase(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, int64(-300), entry.AmountCents)
	assert.Equal(t, ledger.KindPurchaseDigital, entry.Kind)
	assert.Equal(t, ledger.EntryBalance, entry.EntryType)
	assert.Equal(t, int64(150), entry.UnitPriceCentsSnapshot)
	assert.Equal(t, 2, entry.Quantity)
	assert.False(t, entry.CashAffectsExpectedCash, "digital purchases move no physical cash")

	assert.Equal(t, entry.ID, pending.OriginalEntryID)
	assert.Equal(t, clock.Now().Add(10*time.Second), pending.ExpiresAt)
	assert.Equal(t, 2, mem.Len())

	remaining, ok := c.Remaining(entry.ID)
	assert.True(t, ok)
	assert.Equal(t, 10, remaining)
}

func TestRecordPurchase_InvalidInput_AppendsNothing(t *testing.T) {
	// GIVEN: A coordinator with an empty store
	// WHEN: Recording purchases with invalid quantity, shelf, or user
	// THEN: Each fails validation and the store stays empty

	ctx := context.Background()
	c, mem, _ := newTestCoordinator(t)

	zeroQty := snackPurchase("user-1")
	zeroQty.Quantity = 0
	_, _, err := c.RecordPurchase(ctx, zeroQty)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)

	blankShelf := snackPurchase("user-1")
	blankShelf.ShelfID = "   "
	_, _, err = c.RecordPurchase(ctx, blankShelf)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shelfId", verr.Field)

	noUser := snackPurchase("")
	_, _, err = c.RecordPurchase(ctx, noUser)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "userId", verr.Field)

	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 0, c.PendingCount())
}

func TestRecordPurchase_BalanceFloor(t *testing.T) {
	// GIVEN: A user with zero balance
	// WHEN: Buying 4 EUR worth, then attempting 2 EUR more
	// THEN: The first lands (floor is -5 EUR), the second is rejected

	ctx := context.Background()
	c, mem, _ := newTestCoordinator(t)

	first := snackPurchase("user-1")
	first.UnitPriceCents = 400
	_, _, err := c.RecordPurchase(ctx, first)
	require.NoError(t, err)

	second := snackPurchase("user-1")
	second.UnitPriceCents = 200
	_, _, err = c.RecordPurchase(ctx, second)

	var berr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, int64(-400), berr.BalanceCents)
	assert.Equal(t, int64(200), berr.RequiredCents)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, 1, mem.Len())
}

func TestRecordPurchase_ConcurrentPurchases_NeverOverdrawPastFloor(t *testing.T) {
	// GIVEN: A user whose balance allows only some of many concurrent buys
	// WHEN: 20 goroutines each try to spend 1 EUR at once (floor -5 EUR)
	// THEN: Exactly 5 succeed; the balance never crosses the floor

	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := snackPurchase("user-1")
			in.UnitPriceCents = 100
			if _, _, err := c.RecordPurchase(ctx, in); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)

	balance, err := c.Ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-500), balance)
}

func TestRecordPurchase_NoSession_Rejected(t *testing.T) {
	// GIVEN: A coordinator whose session was cleared (logged out)
	// WHEN: Recording a purchase
	// THEN: Unauthenticated, nothing written

	ctx := context.Background()
	c, mem, _ := newTestCoordinator(t)
	c.Sessions.Clear()

	_, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	assert.ErrorIs(t, err, ledger.ErrUnauthenticated)
	assert.Equal(t, 0, mem.Len())
}

func TestRecordPurchase_ExpiredSession_RefreshesThenWrites(t *testing.T) {
	// GIVEN: An expired session and a working refresh function
	// WHEN: Recording a purchase
	// THEN: The token is refreshed just in time and the entry lands

	ctx := context.Background()
	c, mem, clock := newTestCoordinator(t)
	c.Sessions.Set(session.Session{
		User:  session.User{ID: "user-1"},
		Token: session.AuthToken{Token: "stale", ExpiresAt: clock.Now().Add(-time.Minute)},
	})
	c.Refresh = func(_ context.Context) (session.AuthToken, error) {
		return session.AuthToken{Token: "fresh", ExpiresAt: clock.Now().Add(time.Hour)}, nil
	}

	_, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())
}

// =============================================================================
// UNDO
// =============================================================================

func TestUndo_InsideWindow_NetsToZero(t *testing.T) {
	// GIVEN: A purchase 5 seconds ago
	// WHEN: The user taps undo
	// THEN: A compensating entry restores the balance; both entries remain

	ctx := context.Background()
	c, mem, clock := newTestCoordinator(t)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	comp, err := c.Undo(ctx, entry.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(150), comp.AmountCents)
	assert.True(t, comp.IsCompensating)
	assert.Equal(t, ledger.KindAdjustmentBalance, comp.Kind)
	assert.Equal(t, fmt.Sprintf("Undo of entry %s", entry.ID), comp.Note)
	assert.Equal(t, "undo-"+string(entry.ID), comp.IdempotencyKey)

	// Original entry is untouched, both are in the ledger
	original, err := c.Ledger.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-150), original.AmountCents)
	assert.Equal(t, 2, mem.Len())

	balance, err := c.Ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// The window is consumed
	assert.False(t, c.CanUndo(entry.ID))
	_, err = c.Undo(ctx, entry.ID, "user-1")
	assert.ErrorIs(t, err, ledger.ErrNoPendingUndo)
}

func TestUndo_AfterWindow_Rejected(t *testing.T) {
	// GIVEN: A purchase 11 seconds ago (window is 10)
	// WHEN: The user taps undo
	// THEN: Rejected as expired; no compensating entry is written

	ctx := context.Background()
	c, mem, clock := newTestCoordinator(t)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(11 * time.Second)

	_, err = c.Undo(ctx, entry.ID, "user-1")
	assert.ErrorIs(t, err, ledger.ErrUndoWindowExpired)
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, 0, c.PendingCount(), "expired window is garbage-collected on lookup")
}

func TestUndo_Concurrent_ExactlyOneWins(t *testing.T) {
	// GIVEN: A store slow enough that two undos for the same entry overlap
	// WHEN: Both fire at once
	// THEN: One appends the compensation, the other is a no-op, and the
	//       balance returns exactly to its pre-purchase value

	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	slow := &slowCompensationStore{Memory: store.NewMemory(), delay: 50 * time.Millisecond}

	sessions := session.NewLifecycle(clock)
	sessions.Set(session.Session{
		User:  session.User{ID: "user-1"},
		Token: session.AuthToken{Token: "t", ExpiresAt: clock.Now().Add(time.Hour)},
	})
	c := purchase.NewCoordinator(ledger.NewLedger(slow), sessions, clock)

	_, err := c.RecordTopUp(ctx, topUp("user-1", 1000))
	require.NoError(t, err)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Undo(ctx, entry.ID, "user-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrNoPendingUndo)
		}
	}
	assert.Equal(t, 1, succeeded)

	balance, err := c.Ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, 3, slow.Len())
}

// slowCompensationStore stretches compensating appends so overlapping undo
// calls would race if the window were not claimed up front.
type slowCompensationStore struct {
	*store.Memory
	delay time.Duration
}

func (s *slowCompensationStore) Append(ctx context.Context, e ledger.Entry) error {
	if e.IsCompensating {
		time.Sleep(s.delay)
	}
	return s.Memory.Append(ctx, e)
}

func TestUndo_AppendFailure_WindowSurvives(t *testing.T) {
	// GIVEN: A store whose next compensating append fails
	// WHEN: Undoing, then retrying after the store recovers
	// THEN: The first attempt reports the error, the retry succeeds

	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	flaky := &flakyStore{Memory: store.NewMemory()}

	sessions := session.NewLifecycle(clock)
	sessions.Set(session.Session{
		User:  session.User{ID: "user-1"},
		Token: session.AuthToken{Token: "t", ExpiresAt: clock.Now().Add(time.Hour)},
	})
	c := purchase.NewCoordinator(ledger.NewLedger(flaky), sessions, clock)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	flaky.failNext = true
	_, err = c.Undo(ctx, entry.ID, "user-1")
	require.Error(t, err)
	assert.True(t, c.CanUndo(entry.ID), "window is handed back after a failed append")

	comp, err := c.Undo(ctx, entry.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), comp.AmountCents)
}

// flakyStore fails a single append on demand.
type flakyStore struct {
	*store.Memory
	failNext bool
}

func (s *flakyStore) Append(ctx context.Context, e ledger.Entry) error {
	if s.failNext {
		s.failNext = false
		return errors.New("store unavailable")
	}
	return s.Memory.Append(ctx, e)
}

func TestUndo_ExpiredWindowWrongUser_ReportsNoPendingUndo(t *testing.T) {
	// GIVEN: An expired window belonging to user-1
	// WHEN: user-2 tries to undo it
	// THEN: Ownership is decided first - no-pending-undo, and the record
	//       is not garbage-collected on a stranger's lookup

	ctx := context.Background()
	c, _, clock := newTestCoordinator(t)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(11 * time.Second)

	_, err = c.Undo(ctx, entry.ID, "user-2")
	assert.ErrorIs(t, err, ledger.ErrNoPendingUndo)
	assert.Equal(t, 1, c.PendingCount())

	// The owner still gets the accurate expiry answer
	_, err = c.Undo(ctx, entry.ID, "user-1")
	assert.ErrorIs(t, err, ledger.ErrUndoWindowExpired)
}

func TestUndo_WrongUser_Rejected(t *testing.T) {
	ctx := context.Background()
	c, mem, _ := newTestCoordinator(t)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	_, err = c.Undo(ctx, entry.ID, "user-2")
	assert.ErrorIs(t, err, ledger.ErrNoPendingUndo)
	assert.Equal(t, 1, mem.Len())
}

func TestUndo_UnknownEntry_Rejected(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)

	_, err := c.Undo(ctx, "no-such-entry", "user-1")
	assert.ErrorIs(t, err, ledger.ErrNoPendingUndo)
}

func TestUndo_ConcurrentPurchases_HaveIndependentWindows(t *testing.T) {
	// GIVEN: Two purchases in flight, 6 seconds apart
	// WHEN: The window of the first expires
	// THEN: The second can still be undone - windows are keyed per entry

	ctx := context.Background()
	c, _, clock := newTestCoordinator(t)
	_, err := c.RecordTopUp(ctx, topUp("user-1", 1000))
	require.NoError(t, err)

	first, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(6 * time.Second)

	second, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(5 * time.Second) // first: 11s old, second: 5s old

	_, err = c.Undo(ctx, first.ID, "user-1")
	assert.ErrorIs(t, err, ledger.ErrUndoWindowExpired)

	comp, err := c.Undo(ctx, second.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), comp.AmountCents)
}

func TestRemaining_RoundsUp(t *testing.T) {
	// GIVEN: A purchase with 9.2 seconds left in its window
	// WHEN: Asking for the remaining seconds
	// THEN: 10 - never shown as less while undo still succeeds

	ctx := context.Background()
	c, _, clock := newTestCoordinator(t)

	entry, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(800 * time.Millisecond)

	remaining, ok := c.Remaining(entry.ID)
	assert.True(t, ok)
	assert.Equal(t, 10, remaining)
}

func TestSweepExpired_ClosesOnlyElapsedWindows(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCoordinator(t)
	_, err := c.RecordTopUp(ctx, topUp("user-1", 1000))
	require.NoError(t, err)

	_, _, err = c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(6 * time.Second)

	fresh, _, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, c.SweepExpired())
	assert.Equal(t, 1, c.PendingCount())
	assert.True(t, c.CanUndo(fresh.ID))
	assert.Equal(t, 0, c.SweepExpired())
}

func TestUndoWindow_Configurable(t *testing.T) {
	// GIVEN: A coordinator with a 30-second window
	// WHEN: Undoing 20 seconds after the purchase
	// THEN: Still allowed

	ctx := context.Background()
	c, _, clock := newTestCoordinator(t)
	c.UndoWindow = 30 * time.Second

	entry, pending, err := c.RecordPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(30*time.Second), pending.ExpiresAt)

	clock.Advance(20 * time.Second)

	_, err = c.Undo(ctx, entry.ID, "user-1")
	assert.NoError(t, err)
}

// =============================================================================
// TOP-UPS AND CASH PURCHASES
// =============================================================================

func TestRecordTopUp_CashCreditsBalanceAndDrawer(t *testing.T) {
	// GIVEN: A cash top-up of 10 EUR at loc-1
	// WHEN: Recording it
	// THEN: Balance credited and the entry is cash-affecting

	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)

	entry, err := c.RecordTopUp(ctx, topUp("user-1", 1000))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), entry.AmountCents)
	assert.Equal(t, ledger.KindTopUpCash, entry.Kind)
	assert.Equal(t, ledger.PayCash, entry.PaymentMethod)
	assert.True(t, entry.CashAffectsExpectedCash)

	balance, err := c.Ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRecordTopUp_DigitalDoesNotTouchCash(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)

	in := topUp("user-1", 500)
	in.Kind = ledger.KindTopUpDigital
	in.LocationID = ""

	entry, err := c.RecordTopUp(ctx, in)
	require.NoError(t, err)
	assert.False(t, entry.CashAffectsExpectedCash)
	assert.Equal(t, ledger.PayInternal, entry.PaymentMethod)
}

func TestRecordTopUp_Invalid_Rejected(t *testing.T) {
	ctx := context.Background()
	c, mem, _ := newTestCoordinator(t)

	var verr *ledger.ValidationError

	notTopUp := topUp("user-1", 500)
	notTopUp.Kind = ledger.KindPurchaseDigital
	_, err := c.RecordTopUp(ctx, notTopUp)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "kind", verr.Field)

	zero := topUp("user-1", 0)
	_, err = c.RecordTopUp(ctx, zero)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amountCents", verr.Field)

	cashNoLocation := topUp("user-1", 500)
	cashNoLocation.LocationID = ""
	_, err = c.RecordTopUp(ctx, cashNoLocation)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "locationId", verr.Field)

	assert.Equal(t, 0, mem.Len())
}

func TestRecordCashPurchase_IsCashAffecting(t *testing.T) {
	// GIVEN: A snack paid with physical cash at the shelf
	// WHEN: Logging it
	// THEN: The entry is a negative cash movement at the location

	ctx := context.Background()
	c, _, _ := newTestCoordinator(t)

	entry, err := c.RecordCashPurchase(ctx, snackPurchase("user-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(-150), entry.AmountCents)
	assert.Equal(t, ledger.KindPurchaseCashLogged, entry.Kind)
	assert.Equal(t, ledger.EntryCashMovement, entry.EntryType)
	assert.Equal(t, ledger.PayCash, entry.PaymentMethod)
	assert.True(t, entry.CashAffectsExpectedCash)

	// Cash purchases have no undo window
	assert.Equal(t, 0, c.PendingCount())
}
