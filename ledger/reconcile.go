/*
reconcile.go - Canonical balance recomputation

PURPOSE:
  The registry balance is a cache. This file recomputes it from the full
  entry history and writes it back, together with the derived lifetime
  tallies and tier.

PROPERTIES:
  - Pure function of the entry list: safe to re-run any number of times,
    two consecutive runs always produce the same result.
  - Always invoked after Accrue, Spend and the expiration sweep.
*/
package ledger

import (
	"context"
	"time"
)

// Reconciler recomputes the cached account projection from the entry log.
type Reconciler struct {
	Store    Store
	Registry Registry

	// Now is the clock used for updated_at stamps. Defaults to time.Now.
	Now func() time.Time
}

func NewReconciler(store Store, registry Registry) *Reconciler {
	return &Reconciler{Store: store, Registry: registry, Now: time.Now}
}

// Recompute sums all entries for the account and writes the result through
// the registry. Returns the canonical balance.
func (r *Reconciler) Recompute(ctx context.Context, id AccountID) (int64, error) {
	entries, err := r.Store.ListByAccount(ctx, id)
	if err != nil {
		return 0, err
	}

	d := Project(entries)
	d.UpdatedAt = r.now()
	if err := r.Registry.UpdateDerived(ctx, id, d); err != nil {
		return 0, err
	}
	return d.Balance, nil
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Project folds an entry list into the derived account projection.
// LifetimeBonus counts every accrual; LifetimeSpent counts checkout spends
// only - expired points were never spent by the customer.
func Project(entries []Entry) Derived {
	var d Derived
	for _, e := range entries {
		d.Balance += e.Amount
		switch {
		case e.Amount > 0:
			d.LifetimeBonus += e.Amount
		case e.Amount < 0 && e.Reason == ReasonCheckoutUse:
			d.LifetimeSpent += -e.Amount
		}
	}
	d.Tier = TierFor(d.LifetimeBonus)
	return d
}
