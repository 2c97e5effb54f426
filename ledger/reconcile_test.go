package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/bonus-ledger/ledger"
	"github.com/warp/bonus-ledger/ledger/store"
)

// =============================================================================
// PROJECTION TESTS
// =============================================================================

func TestProject_BalanceIsSumOfAllAmounts(t *testing.T) {
	entries := []ledger.Entry{
		accrual("e1", 100, at(1)),
		spend("e2", 60, at(2)),
		accrual("e3", 50, at(3)),
	}

	d := ledger.Project(entries)
	if d.Balance != 90 {
		t.Errorf("expected balance 90, got %d", d.Balance)
	}
}

func TestProject_LifetimeTallies(t *testing.T) {
	// GIVEN: accruals, a checkout spend, and an expiration debit
	// THEN: lifetime bonus counts all accruals; lifetime spent counts only
	//       checkout spends, never expirations

	entries := []ledger.Entry{
		accrual("e1", 100, at(1)),
		accrual("e2", 50, at(2)),
		spend("e3", 30, at(3)),
		{ID: "e4", AccountID: "acc-1", Amount: -70, Reason: ledger.ReasonExpired, CreatedAt: at(200)},
	}

	d := ledger.Project(entries)
	if d.LifetimeBonus != 150 {
		t.Errorf("expected lifetime bonus 150, got %d", d.LifetimeBonus)
	}
	if d.LifetimeSpent != 30 {
		t.Errorf("expected lifetime spent 30, got %d", d.LifetimeSpent)
	}
	if d.Balance != 50 {
		t.Errorf("expected balance 50, got %d", d.Balance)
	}
}

func TestProject_TierFollowsLifetimeBonus(t *testing.T) {
	entries := []ledger.Entry{accrual("e1", 60_000, at(1))}
	d := ledger.Project(entries)
	if d.Tier != ledger.TierGold {
		t.Errorf("expected gold tier at 60k lifetime bonus, got %s", d.Tier)
	}
}

// =============================================================================
// RECONCILER TESTS
// =============================================================================

func TestReconciler_RecomputeWritesThroughRegistry(t *testing.T) {
	// GIVEN: an account with history but a stale cached balance
	// WHEN: recomputing
	// THEN: the registry holds the replay result

	mem := store.NewMemory()
	seed(t, mem,
		accrual("e1", 100, at(1)),
		spend("e2", 60, at(2)),
	)
	if _, err := mem.GetOrCreate(context.Background(), "acc-1"); err != nil {
		t.Fatal(err)
	}
	if err := mem.UpdateBalance(context.Background(), "acc-1", 999); err != nil {
		t.Fatal(err)
	}

	r := ledger.NewReconciler(mem, mem)
	balance, err := r.Recompute(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 40 {
		t.Errorf("expected recomputed balance 40, got %d", balance)
	}

	acc, err := mem.Get(context.Background(), "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 40 {
		t.Errorf("registry not updated: got %d", acc.Balance)
	}
}

func TestReconciler_RecomputeIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, accrual("e1", 100, at(1)))
	if _, err := mem.GetOrCreate(context.Background(), "acc-1"); err != nil {
		t.Fatal(err)
	}

	r := ledger.NewReconciler(mem, mem)
	r.Now = func() time.Time { return at(10) }

	first, err := r.Recompute(context.Background(), "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Recompute(context.Background(), "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("two consecutive recomputes disagree: %d vs %d", first, second)
	}
}

// =============================================================================
// TIER TESTS
// =============================================================================

func TestTierFor_Thresholds(t *testing.T) {
	cases := []struct {
		lifetime int64
		want     ledger.Tier
	}{
		{0, ledger.TierStandard},
		{9_999, ledger.TierStandard},
		{10_000, ledger.TierSilver},
		{49_999, ledger.TierSilver},
		{50_000, ledger.TierGold},
		{200_000, ledger.TierPlatinum},
	}
	for _, c := range cases {
		if got := ledger.TierFor(c.lifetime); got != c.want {
			t.Errorf("TierFor(%d) = %s, want %s", c.lifetime, got, c.want)
		}
	}
}

func TestBonusForOrder_TruncatesTowardZero(t *testing.T) {
	// 1 point per 100 minor units at standard; 1.25 at silver.
	// Fractions always truncate - the customer never gets a rounded-up point.

	if got := ledger.BonusForOrder(2_599, ledger.TierStandard); got != 25 {
		t.Errorf("standard: expected 25, got %d", got)
	}
	if got := ledger.BonusForOrder(1_000, ledger.TierSilver); got != 12 {
		t.Errorf("silver: expected 12 (12.5 truncated), got %d", got)
	}
	if got := ledger.BonusForOrder(99, ledger.TierStandard); got != 0 {
		t.Errorf("sub-unit order: expected 0, got %d", got)
	}
}
