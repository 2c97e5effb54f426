package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bonus-ledger/ledger"
	"github.com/warp/bonus-ledger/ledger/store"
	"github.com/warp/bonus-ledger/wallet"
)

func newService() (*wallet.Service, *store.Memory) {
	mem := store.NewMemory()
	svc := wallet.New(mem, mem)
	return svc, mem
}

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// ACCRUE
// =============================================================================

func TestAccrue_IncreasesBalance(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	balance, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = svc.Accrue(ctx, "cust-1", 50, ledger.ReasonPromo, "")
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
}

func TestAccrue_RejectsNonPositiveAmounts(t *testing.T) {
	svc, mem := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 0, ledger.ReasonPromo, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Accrue(ctx, "cust-1", -5, ledger.ReasonPromo, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected accruals must not write entries")
}

func TestAccrue_DuplicateOrderDeliveryIsAbsorbed(t *testing.T) {
	// GIVEN: an order completion event delivered twice
	// WHEN: accruing for the same (account, order) pair again
	// THEN: exactly one entry exists and both calls report the same balance

	svc, mem := newService()
	ctx := context.Background()

	first, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)

	second, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAccrue_SameOrderDifferentAccounts(t *testing.T) {
	// Order ids are only unique per account: two customers splitting an
	// order both earn their points.

	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)

	balance, err := svc.Accrue(ctx, "cust-2", 80, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestAccrue_EveryEventLeavesAnEntry(t *testing.T) {
	// GIVEN: n distinct completion events
	// THEN: n entries in history - an accrual is never silently dropped

	svc, mem := newService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Accrue(ctx, "cust-1", 10, ledger.ReasonOrderAccrual, string(rune('a'+i)))
		require.NoError(t, err)
	}

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestAccrueForOrder_AppliesTierRate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	// standard tier: 1 point per 100 minor units
	balance, err := svc.AccrueForOrder(ctx, "cust-1", "order-1", 2_599)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)
}

func TestAccrueForOrder_TinyOrderEarnsNothing(t *testing.T) {
	svc, mem := newService()
	ctx := context.Background()

	balance, err := svc.AccrueForOrder(ctx, "cust-1", "order-1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// SPEND
// =============================================================================

func TestSpend_DebitsAcrossBatches(t *testing.T) {
	// GIVEN: two accruals of 100 and 50
	// WHEN: spending 120
	// THEN: balance is 30

	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	_, err = svc.Accrue(ctx, "cust-1", 50, ledger.ReasonOrderAccrual, "order-2")
	require.NoError(t, err)

	balance, err := svc.Spend(ctx, "cust-1", 120, ledger.ReasonCheckoutUse)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)
}

func TestSpend_ExactBalanceToZero(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonPromo, "")
	require.NoError(t, err)

	balance, err := svc.Spend(ctx, "cust-1", 100, ledger.ReasonCheckoutUse)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestSpend_InsufficientBalanceWritesNothing(t *testing.T) {
	// GIVEN: a balance of 100
	// WHEN: spending 150
	// THEN: rejected with the available balance attached, history untouched

	svc, mem := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonPromo, "")
	require.NoError(t, err)

	_, err = svc.Spend(ctx, "cust-1", 150, ledger.ReasonCheckoutUse)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var ib *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, int64(100), ib.Available)
	assert.Equal(t, int64(150), ib.Requested)
	assert.Equal(t, int64(50), ib.Shortfall())

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a rejected spend must not append a debit")
}

func TestSpend_ZeroBalanceAccount(t *testing.T) {
	svc, _ := newService()

	_, err := svc.Spend(context.Background(), "cust-new", 10, ledger.ReasonCheckoutUse)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestSpend_RejectsNonPositiveAmounts(t *testing.T) {
	svc, _ := newService()

	_, err := svc.Spend(context.Background(), "cust-1", 0, ledger.ReasonCheckoutUse)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestSpend_ConcurrentSpendsCannotOverdraw(t *testing.T) {
	// GIVEN: a balance of 100 and two concurrent spends of 80
	// THEN: exactly one succeeds; the balance never goes negative

	svc, mem := newService()
	ctx := context.Background()

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonPromo, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Spend(ctx, "cust-1", 80, ledger.ReasonCheckoutUse)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	entries, err := mem.ListByAccount(ctx, "cust-1")
	require.NoError(t, err)
	var balance int64
	for _, e := range entries {
		balance += e.Amount
	}
	assert.Equal(t, int64(20), balance)
}

// =============================================================================
// EXPIRATION
// =============================================================================

func TestRunExpiration_SweepsStalePoints(t *testing.T) {
	// GIVEN: 100 points accrued, 30 spent, then 200 days pass
	// WHEN: the sweep runs with a 180 day retention
	// THEN: the remaining 70 expire and the balance drops to 0

	svc, _ := newService()
	ctx := context.Background()

	clk := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	svc.Now = clk.Now

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = svc.Spend(ctx, "cust-1", 30, ledger.ReasonCheckoutUse)
	require.NoError(t, err)

	clk.Advance(200 * 24 * time.Hour)

	res, err := svc.RunExpiration(ctx, "cust-1", 180)
	require.NoError(t, err)
	assert.Equal(t, int64(70), res.Expired)
	assert.Equal(t, int64(0), res.NewBalance)
}

func TestRunExpiration_RepeatRunExpiresNothing(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	clk := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	svc.Now = clk.Now

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)

	clk.Advance(200 * 24 * time.Hour)

	first, err := svc.RunExpiration(ctx, "cust-1", 180)
	require.NoError(t, err)
	require.Equal(t, int64(100), first.Expired)

	second, err := svc.RunExpiration(ctx, "cust-1", 180)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Expired)
	assert.Equal(t, int64(0), second.NewBalance)
}

func TestRunExpiration_DefaultRetention(t *testing.T) {
	// retentionDays <= 0 falls back to the 180 day platform default

	svc, _ := newService()
	ctx := context.Background()

	clk := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	svc.Now = clk.Now

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)

	clk.Advance(100 * 24 * time.Hour)

	res, err := svc.RunExpiration(ctx, "cust-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Expired, "100 days old is inside the default window")
}

func TestExpiringSoon(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	clk := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	svc.Now = clk.Now

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)

	// 170 days later the batch is 10 days from expiring
	clk.Advance(170 * 24 * time.Hour)

	soon, err := svc.ExpiringSoon(ctx, "cust-1", 180, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(100), soon)

	soon, err = svc.ExpiringSoon(ctx, "cust-1", 180, 5*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), soon)
}

// =============================================================================
// READS
// =============================================================================

func TestBalance_UnknownAccountReadsZeroWithoutCreating(t *testing.T) {
	// GIVEN: an account that has never accrued anything
	// WHEN: reading its balance
	// THEN: zero, and the read leaves no account row behind - accounts are
	//       created on first accrual only

	svc, mem := newService()
	ctx := context.Background()

	balance, err := svc.Balance(ctx, "cust-never-seen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = mem.Get(ctx, "cust-never-seen")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestBalance_RebuildsAccountWithHistoryButNoRow(t *testing.T) {
	// An account whose registry row was lost but whose entries survive is
	// rebuilt from the log on read.

	svc, mem := newService()
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, ledger.Entry{
		ID:        "e1",
		AccountID: "cust-1",
		Amount:    100,
		Reason:    ledger.ReasonPromo,
		CreatedAt: time.Now(),
	}))

	balance, err := svc.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestBalance_RecomputesWhenStale(t *testing.T) {
	// GIVEN: a cached balance older than StaleAfter with newer history behind it
	// THEN: Balance replays the log instead of trusting the cache

	svc, mem := newService()
	ctx := context.Background()

	svc.StaleAfter = time.Nanosecond

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonPromo, "")
	require.NoError(t, err)

	// Corrupt the cache behind the service's back.
	require.NoError(t, mem.UpdateBalance(ctx, "cust-1", 999))
	time.Sleep(2 * time.Millisecond)

	balance, err := svc.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestHistory_ChronologicalOrder(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	clk := &clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	svc.Now = clk.Now

	_, err := svc.Accrue(ctx, "cust-1", 100, ledger.ReasonOrderAccrual, "order-1")
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = svc.Spend(ctx, "cust-1", 40, ledger.ReasonCheckoutUse)
	require.NoError(t, err)

	entries, err := svc.History(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(100), entries[0].Amount)
	assert.Equal(t, int64(-40), entries[1].Amount)
	assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))
}
