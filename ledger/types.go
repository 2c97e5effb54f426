/*
Package ledger provides the core bonus-point ledger engine.

PURPOSE:
  This package contains the types and algorithms behind the loyalty wallet:
  the append-only entry log, FIFO matching of debits against accrual batches,
  balance reconciliation, and expiration of stale remainders.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable signed-amount ledger record (the unit of truth)
  - Account: The cached balance/tier projection for one customer
  - Batch: The unconsumed remainder of one historical accrual

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified or deleted, only appended
  2. Precision: Amounts are integer minor-units; no floats in the ledger
  3. Derivation: Account.Balance is a disposable cache, recomputed from
     the full entry history - it is never the source of truth

SEE ALSO:
  - matching.go: FIFO batch replay
  - reconcile.go: Balance recomputation
  - expiration.go: Stale-batch expiration sweep
*/
package ledger

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EntryID string

// =============================================================================
// ENTRY - Atomic change to an account's point balance
// =============================================================================

// Reason tags why an entry exists. Accrual reasons are positive-amount,
// debit reasons negative-amount; the matcher does not care which debit
// reason it sees - spends and expirations consume batches identically.
type Reason string

const (
	ReasonOrderAccrual Reason = "order_accrual" // points earned on order completion
	ReasonPromo        Reason = "promo"         // campaign / goodwill grant
	ReasonCheckoutUse  Reason = "checkout_use"  // points spent at checkout
	ReasonExpired      Reason = "expired"       // stale batch remainder debited by the sweep
	ReasonAdjustment   Reason = "adjustment"    // manual support correction
)

// Entry is a single immutable ledger record.
//
// INVARIANTS:
//   - Append-only: no entry is ever mutated or removed.
//   - Amount is signed: positive = accrual (opens a batch),
//     negative = debit (spend or expiration).
//   - OrderID is set only for order-driven accruals and doubles as the
//     idempotency key for at-least-once completion delivery.
type Entry struct {
	ID        EntryID
	AccountID AccountID
	Amount    int64
	Reason    Reason
	OrderID   string
	CreatedAt time.Time
}

// Debit reports whether the entry consumes from accrual batches.
func (e Entry) Debit() bool { return e.Amount < 0 }

// =============================================================================
// ACCOUNT - Cached projection of one customer's wallet
// =============================================================================

// Account is the per-customer balance record. Created lazily on first
// accrual. Balance, LifetimeSpent, LifetimeBonus and Tier are all derived
// from the entry log by the Reconciler; the row exists so that profile and
// checkout reads do not replay history on every request.
type Account struct {
	ID            AccountID
	Balance       int64
	Tier          Tier
	LifetimeSpent int64
	LifetimeBonus int64
	UpdatedAt     time.Time
}

// =============================================================================
// BATCH - Unconsumed remainder of one historical accrual
// =============================================================================

// Batch tracks how much of a single positive entry is still unconsumed
// after FIFO-matching every later debit against the open batches.
type Batch struct {
	EntryID   EntryID
	AccountID AccountID
	Amount    int64 // original accrual amount
	Consumed  int64 // FIFO-attributed spends + expirations, <= Amount
	CreatedAt time.Time
}

// Remaining returns the unconsumed portion of the batch.
func (b Batch) Remaining() int64 { return b.Amount - b.Consumed }

// ExpiresAt returns when the batch becomes expirable under the given
// retention window, measured from the batch's original creation time.
// Partial spends against the batch do not reset the window.
func (b Batch) ExpiresAt(retention time.Duration) time.Time {
	return b.CreatedAt.Add(retention)
}

// DefaultRetentionDays is the platform-wide retention window for unspent
// accrual batches when the caller does not override it.
const DefaultRetentionDays = 180
