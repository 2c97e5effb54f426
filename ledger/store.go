/*
store.go - Persistence interfaces for entries and accounts

PURPOSE:
  Defines the boundary between the ledger engine and the database.
  The Store holds the append-only entry log; the Registry holds the
  cached per-account projection.

APPEND-ONLY CONTRACT:
  The Store interface enforces append-only semantics:
  - Append(): single entry write
  - NO Update() or Delete() methods exist
  Corrections are made by appending adjustment entries.

IDEMPOTENCY:
  Order-driven accruals carry the order id. Stores reject a second accrual
  for the same (account, order) pair with ErrDuplicateOrderAccrual, which
  turns at-least-once completion delivery into effectively-once mutation.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite (same patterns for Postgres)
  - ledger/store/memory.go: in-memory, for tests and dev

SEE ALSO:
  - reconcile.go: consumes ListByAccount, writes through Registry
  - wallet/service.go: the only caller that appends
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Append-only entry log
// =============================================================================

// Store persists ledger entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists one entry. Returns ErrDuplicateOrderAccrual if the
	// entry is an order accrual that already exists for this account.
	// This is the ONLY write operation.
	Append(ctx context.Context, e Entry) error

	// ListByAccount returns every entry for the account, ordered by
	// created_at ascending then entry id ascending. The full history is
	// finite and restartable; replays depend on this ordering.
	ListByAccount(ctx context.Context, id AccountID) ([]Entry, error)

	// HasOrderAccrual reports whether an order_accrual entry already exists
	// for (account, order). Used as the pre-append idempotency check.
	HasOrderAccrual(ctx context.Context, id AccountID, orderID string) (bool, error)
}

// =============================================================================
// REGISTRY - Cached account projection
// =============================================================================

// Registry persists the per-account cache. Everything it stores is derived
// from the entry log and can be rebuilt at any time.
type Registry interface {
	// GetOrCreate returns the account, creating a zero-balance record if
	// this is the first time the id is seen.
	GetOrCreate(ctx context.Context, id AccountID) (Account, error)

	// Get returns the account, or ErrAccountNotFound.
	Get(ctx context.Context, id AccountID) (Account, error)

	// UpdateBalance overwrites only the cached balance field and bumps
	// updated_at.
	UpdateBalance(ctx context.Context, id AccountID, balance int64) error

	// UpdateDerived overwrites the full derived projection: balance,
	// lifetime tallies and tier.
	UpdateDerived(ctx context.Context, id AccountID, d Derived) error

	// ListAccounts returns all known account ids. The expiration scheduler
	// iterates these.
	ListAccounts(ctx context.Context) ([]AccountID, error)
}

// Derived is the registry projection computed by the Reconciler.
type Derived struct {
	Balance       int64
	LifetimeBonus int64
	LifetimeSpent int64
	Tier          Tier
	UpdatedAt     time.Time
}
