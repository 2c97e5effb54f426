/*
expiration.go - Expiration sweep for stale accrual batches

PURPOSE:
  Bounds outstanding point liability: accrual remainders that sit unspent
  past the retention window are debited back out of the wallet.

IDEMPOTENT BY CONSTRUCTION:
  The sweep appends ordinary negative entries (reason "expired"). On the
  next replay those entries consume the very batches they expired, so their
  remainders are already zero and a second immediate run expires nothing.
  There is no "expired" flag to keep in sync.

RETENTION WINDOW:
  Measured from each batch's original creation time. A partial spend
  against a batch does not reset the window for the remainder.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sweep expires stale unconsumed accrual remainders.
type Sweep struct {
	Store Store
}

func NewSweep(store Store) *Sweep {
	return &Sweep{Store: store}
}

// Run replays the account, appends one "expired" debit per stale batch with
// remaining points, and returns the total expired amount. The caller is
// expected to reconcile afterwards.
//
// now is explicit so that schedulers and tests agree on what "stale" means
// within a single run.
func (s *Sweep) Run(ctx context.Context, id AccountID, retention time.Duration, now time.Time) (int64, error) {
	entries, err := s.Store.ListByAccount(ctx, id)
	if err != nil {
		return 0, err
	}

	batches, err := Match(entries)
	if err != nil {
		return 0, err
	}

	var expired int64
	for _, b := range batches {
		remaining := b.Remaining()
		if remaining <= 0 {
			continue
		}
		if !now.After(b.ExpiresAt(retention)) {
			continue
		}

		e := Entry{
			ID:        EntryID(uuid.NewString()),
			AccountID: id,
			Amount:    -remaining,
			Reason:    ReasonExpired,
			CreatedAt: now,
		}
		if err := s.Store.Append(ctx, e); err != nil {
			// Partial sweeps are safe: already-appended debits are folded
			// into the next replay like any other entry.
			return expired, err
		}
		expired += remaining
	}

	return expired, nil
}

// ExpiringWithin returns the total points that would expire if the sweep ran
// at every instant up to now+horizon: the sum of remainders of batches whose
// window ends inside the horizon. Used for "expiring soon" display.
func ExpiringWithin(entries []Entry, retention, horizon time.Duration, now time.Time) (int64, error) {
	batches, err := Match(entries)
	if err != nil {
		return 0, err
	}

	var total int64
	cutoff := now.Add(horizon)
	for _, b := range batches {
		if b.Remaining() <= 0 {
			continue
		}
		if b.ExpiresAt(retention).Before(cutoff) {
			total += b.Remaining()
		}
	}
	return total, nil
}
