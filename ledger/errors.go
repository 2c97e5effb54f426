/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The wallet and api packages wrap these with additional context.

ERROR CATEGORIES:
  1. Validation errors - rejected before anything is written
  2. Integrity errors  - replay found an impossible history
  3. Store errors      - database-level failures

USAGE:
  Callers classify with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrInsufficientBalance) {
        // cap the bonus-use option, order proceeds
    }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an accrual or spend amount is not
	// strictly positive. Rejected before any store call.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a spend exceeds the reconciled
	// balance. No entry is written.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDataIntegrity is returned when replay finds debits exceeding the
	// accrued total - a prior violation of the non-negativity invariant.
	// Surfaced for manual reconciliation, never auto-corrected.
	ErrDataIntegrity = errors.New("ledger integrity violation")

	// ErrDuplicateOrderAccrual is returned by stores when an accrual for the
	// same (account, order) pair already exists. Accrue absorbs this into an
	// effectively-once success, so completion events can be redelivered.
	ErrDuplicateOrderAccrual = errors.New("duplicate order accrual")

	// ErrAccountNotFound is returned for reads against an account that has
	// never accrued anything.
	ErrAccountNotFound = errors.New("account not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a rejected spend with the exact shortfall.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d, shortfall %d",
		e.AccountID, e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Shortfall is how many points the request exceeded the balance by.
func (e *InsufficientBalanceError) Shortfall() int64 { return e.Requested - e.Available }

// DataIntegrityError reports an unmatched debit remainder found during replay.
// Unmatched is the portion of the debit that no open batch could absorb.
type DataIntegrityError struct {
	AccountID AccountID
	EntryID   EntryID
	Unmatched int64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation for %s: entry %s leaves %d points unmatched",
		e.AccountID, e.EntryID, e.Unmatched)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// StoreError wraps a transient persistence failure with the failed operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a fault in the ledger or its store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
// Writes must only be retried with an idempotency key (order id); a timed-out
// write is an unknown outcome, not a safe no-op.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
