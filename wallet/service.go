/*
Package wallet is the only interface the rest of the platform talks to.

PURPOSE:
  Wraps the ledger engine with the wallet-level rules: amount validation,
  per-account serialization, order-accrual idempotency, and the reconcile-
  after-every-mutation discipline.

OPERATIONS:
  Accrue        points earned (order completion, promos)
  Spend         points used at checkout
  Balance       cached balance, recomputed when stale
  History       ordered entry list for activity views
  RunExpiration sweep stale batch remainders
  ExpiringSoon  preview of points about to expire

IDEMPOTENCY:
  Order completion events are delivered at least once. Accrue checks for an
  existing (order, account) accrual before appending, and absorbs the store's
  duplicate rejection into a success that returns the current balance. The
  caller can redeliver freely.

ERROR HANDLING:
  All failures surface to the caller. A failed accrual is never downgraded
  into a silent success - the order subsystem's job runner retries it.

SEE ALSO:
  - ledger/matching.go: the FIFO engine behind Spend caps and expiration
  - api/handlers.go: HTTP surface over this service
*/
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/warp/bonus-ledger/ledger"
)

// Service is the wallet API. All methods are synchronous; per-account
// mutations are serialized internally.
type Service struct {
	store      ledger.Store
	registry   ledger.Registry
	reconciler *ledger.Reconciler
	sweep      *ledger.Sweep
	locks      *accountLocks

	// StaleAfter bounds how old a cached balance may be before Balance
	// recomputes it. Zero means always trust the cache once reconciled.
	StaleAfter time.Duration

	// Now is the clock for new entries. Overridable in tests.
	Now func() time.Time
}

// New creates a wallet service over the given store and registry.
func New(store ledger.Store, registry ledger.Registry) *Service {
	return &Service{
		store:      store,
		registry:   registry,
		reconciler: ledger.NewReconciler(store, registry),
		sweep:      ledger.NewSweep(store),
		locks:      newAccountLocks(),
		StaleAfter: 5 * time.Minute,
		Now:        time.Now,
	}
}

// ExpirationResult reports one expiration run.
type ExpirationResult struct {
	Expired    int64
	NewBalance int64
}

// =============================================================================
// ACCRUE
// =============================================================================

// Accrue appends a positive entry and returns the reconciled balance.
//
// For order accruals (reason order_accrual with an order id) the call is
// idempotent: redelivered completion events append nothing and return the
// current balance.
func (s *Service) Accrue(ctx context.Context, id ledger.AccountID, amount int64, reason ledger.Reason, orderID string) (int64, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	lock := s.locks.get(string(id))
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.registry.GetOrCreate(ctx, id); err != nil {
		return 0, err
	}

	if reason == ledger.ReasonOrderAccrual && orderID != "" {
		exists, err := s.store.HasOrderAccrual(ctx, id, orderID)
		if err != nil {
			return 0, err
		}
		if exists {
			return s.reconciler.Recompute(ctx, id)
		}
	}

	e := ledger.Entry{
		ID:        ledger.EntryID(uuid.NewString()),
		AccountID: id,
		Amount:    amount,
		Reason:    reason,
		OrderID:   orderID,
		CreatedAt: s.now(),
	}
	if err := s.store.Append(ctx, e); err != nil {
		// The unique index can still fire under concurrent redelivery;
		// the first writer won and the outcome is the same.
		if !errors.Is(err, ledger.ErrDuplicateOrderAccrual) {
			return 0, err
		}
	}

	return s.reconciler.Recompute(ctx, id)
}

// AccrueForOrder converts an order total (minor units) into points at the
// account's current tier rate and accrues them. Orders too small to earn a
// point append nothing and return the current balance.
func (s *Service) AccrueForOrder(ctx context.Context, id ledger.AccountID, orderID string, orderTotal int64) (int64, error) {
	acc, err := s.registry.GetOrCreate(ctx, id)
	if err != nil {
		return 0, err
	}
	bonus := ledger.BonusForOrder(orderTotal, acc.Tier)
	if bonus == 0 {
		return acc.Balance, nil
	}
	return s.Accrue(ctx, id, bonus, ledger.ReasonOrderAccrual, orderID)
}

// =============================================================================
// SPEND
// =============================================================================

// Spend debits points at checkout. The balance check and the append are one
// critical section per account, so two concurrent spends against a low
// balance cannot both pass.
//
// On rejection no entry is written and the error carries the available
// balance so checkout can degrade to a capped bonus-use option.
func (s *Service) Spend(ctx context.Context, id ledger.AccountID, amount int64, reason ledger.Reason) (int64, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	if reason == "" {
		reason = ledger.ReasonCheckoutUse
	}

	lock := s.locks.get(string(id))
	lock.Lock()
	defer lock.Unlock()

	// Check against the reconciled balance, not the cache.
	balance, err := s.reconciler.Recompute(ctx, id)
	if err != nil {
		return 0, err
	}
	if amount > balance {
		return balance, &ledger.InsufficientBalanceError{
			AccountID: id,
			Available: balance,
			Requested: amount,
		}
	}

	e := ledger.Entry{
		ID:        ledger.EntryID(uuid.NewString()),
		AccountID: id,
		Amount:    -amount,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if err := s.store.Append(ctx, e); err != nil {
		return 0, err
	}

	return s.reconciler.Recompute(ctx, id)
}

// =============================================================================
// READS
// =============================================================================

// Balance returns the cached balance, recomputing it first when the cache
// is stale or the account has history but no reconciled row yet.
//
// A never-seen account reads as zero without writing anything: accounts are
// created on first accrual, never by a balance lookup.
func (s *Service) Balance(ctx context.Context, id ledger.AccountID) (int64, error) {
	acc, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			entries, lerr := s.store.ListByAccount(ctx, id)
			if lerr != nil {
				return 0, lerr
			}
			if len(entries) == 0 {
				return 0, nil
			}
			return s.reconciler.Recompute(ctx, id)
		}
		return 0, err
	}
	if s.StaleAfter > 0 && s.now().Sub(acc.UpdatedAt) > s.StaleAfter {
		return s.reconciler.Recompute(ctx, id)
	}
	return acc.Balance, nil
}

// Account returns the full cached account record.
func (s *Service) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	return s.registry.Get(ctx, id)
}

// History returns the account's full entry list, chronologically ordered.
// Pure read for activity views.
func (s *Service) History(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	return s.store.ListByAccount(ctx, id)
}

// ExpiringSoon returns the points that will expire within the horizon under
// the given retention window.
func (s *Service) ExpiringSoon(ctx context.Context, id ledger.AccountID, retentionDays int, horizon time.Duration) (int64, error) {
	entries, err := s.store.ListByAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour
	return ledger.ExpiringWithin(entries, retention, horizon, s.now())
}

// =============================================================================
// EXPIRATION
// =============================================================================

// RunExpiration sweeps the account's stale batch remainders and reconciles.
// retentionDays <= 0 uses the platform default (180 days).
//
// Idempotent: an immediate second run for the same "now" expires zero.
func (s *Service) RunExpiration(ctx context.Context, id ledger.AccountID, retentionDays int) (ExpirationResult, error) {
	if retentionDays <= 0 {
		retentionDays = ledger.DefaultRetentionDays
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	lock := s.locks.get(string(id))
	lock.Lock()
	defer lock.Unlock()

	expired, err := s.sweep.Run(ctx, id, retention, s.now())
	if err != nil {
		return ExpirationResult{}, err
	}

	balance, err := s.reconciler.Recompute(ctx, id)
	if err != nil {
		return ExpirationResult{}, err
	}
	return ExpirationResult{Expired: expired, NewBalance: balance}, nil
}

// Accounts lists every known account id, for sweep scheduling.
func (s *Service) Accounts(ctx context.Context) ([]ledger.AccountID, error) {
	return s.registry.ListAccounts(ctx)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
