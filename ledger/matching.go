/*
matching.go - FIFO matching of debits against accrual batches

PURPOSE:
  Replays one account's entries chronologically and computes how much of
  each historical accrual remains unconsumed. This is what caps spends and
  what the expiration sweep uses to find stale remainders.

ALGORITHM:
  Walk entries in (created_at, entry_id) order:
  - positive entry: open a new batch {amount, created_at, consumed=0}
  - negative entry: consume open batches oldest-first until the debit is
    fully attributed

  Expiration debits are matched exactly like spends. That uniform treatment
  is what makes the sweep idempotent: a second run replays the first run's
  expiration entries as ordinary debits, finds every stale batch already
  at remaining=0, and expires nothing.

INVARIANT:
  For any batch, Consumed never exceeds Amount. If a debit cannot be fully
  matched (debits exceed accrued total), the history itself is corrupt -
  a prior non-negativity violation - and replay surfaces DataIntegrityError
  instead of clamping.
*/
package ledger

import "sort"

// Match replays a chronological entry list and returns the accrual batches
// in creation order, each annotated with its FIFO-attributed consumption.
//
// The input is re-sorted defensively by (CreatedAt, ID) so callers can pass
// any ordering; stores already return this ordering.
func Match(entries []Entry) ([]Batch, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var batches []Batch
	for _, e := range sorted {
		switch {
		case e.Amount > 0:
			batches = append(batches, Batch{
				EntryID:   e.ID,
				AccountID: e.AccountID,
				Amount:    e.Amount,
				CreatedAt: e.CreatedAt,
			})

		case e.Amount < 0:
			need := -e.Amount
			for i := range batches {
				if need == 0 {
					break
				}
				open := batches[i].Remaining()
				if open == 0 {
					continue
				}
				take := min64(need, open)
				batches[i].Consumed += take
				need -= take
			}
			if need > 0 {
				return nil, &DataIntegrityError{
					AccountID: e.AccountID,
					EntryID:   e.ID,
					Unmatched: need,
				}
			}
		}
		// zero-amount entries carry no value and open no batch
	}

	return batches, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
