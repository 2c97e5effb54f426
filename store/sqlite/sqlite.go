/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.Registry using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections via adjustment entries only

KEY TABLES:
  ledger_entries:   Immutable signed-amount log, the source of truth
  accounts:         Cached balance/tier projection per customer
  expiration_runs:  Audit trail of expiration sweeps

INDEXES:
  - idx_entries_account_created: chronological replay (hot path) and the
    expiration age filter
  - idx_entries_order_accrual: UNIQUE partial index enforcing one accrual
    per (account, order) - the idempotency backstop for redelivered
    completion events

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/bonus-ledger/ledger"
)

// timeLayout is RFC3339 with fixed-width nanoseconds. Timestamps are TEXT
// columns ordered lexicographically; RFC3339Nano trims trailing fractional
// zeros ("...00.1Z" vs "...00.15Z"), which makes text order disagree with
// chronological order. Fixed width keeps ORDER BY created_at correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.Store and ledger.Registry using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only, source of truth)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		entry_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		order_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Chronological replay and the expiration age filter
	CREATE INDEX IF NOT EXISTS idx_entries_account_created
		ON ledger_entries(account_id, created_at, entry_id);

	-- CRITICAL: one order_accrual per (account, order).
	-- Completion events are delivered at least once; this index is the
	-- database-level backstop behind the pre-append idempotency check.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_order_accrual
		ON ledger_entries(account_id, order_id)
		WHERE reason = 'order_accrual' AND order_id IS NOT NULL;

	-- Accounts (cached projection, rebuilt by the reconciler)
	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		tier TEXT NOT NULL DEFAULT 'standard',
		lifetime_spent INTEGER NOT NULL DEFAULT 0,
		lifetime_bonus INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Expiration sweep audit trail
	CREATE TABLE IF NOT EXISTS expiration_runs (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		retention_days INTEGER NOT NULL,
		expired INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		ran_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expiration_runs_account
		ON expiration_runs(account_id, ran_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ledger_entries (entry_id, account_id, amount, reason, order_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(e.ID),
		string(e.AccountID),
		e.Amount,
		string(e.Reason),
		nullString(e.OrderID),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateOrderAccrual
		}
		return &ledger.StoreError{Op: "append", Err: err}
	}
	return nil
}

// ListByAccount returns all entries for an account, ordered by created_at
// then entry_id - the replay order the matching engine depends on.
func (s *Store) ListByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT entry_id, account_id, amount, reason, order_id, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at ASC, entry_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, &ledger.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &ledger.StoreError{Op: "list", Err: err}
	}
	return entries, nil
}

// HasOrderAccrual checks whether an order has already been credited.
func (s *Store) HasOrderAccrual(ctx context.Context, id ledger.AccountID, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries
		 WHERE account_id = ? AND order_id = ? AND reason = 'order_accrual'`,
		string(id), orderID,
	).Scan(&count)
	if err != nil {
		return false, &ledger.StoreError{Op: "order-accrual-check", Err: err}
	}
	return count > 0, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e         ledger.Entry
		entryID   string
		accountID string
		reason    string
		orderID   sql.NullString
		createdAt string
	)

	if err := rows.Scan(&entryID, &accountID, &e.Amount, &reason, &orderID, &createdAt); err != nil {
		return e, &ledger.StoreError{Op: "scan", Err: err}
	}

	e.ID = ledger.EntryID(entryID)
	e.AccountID = ledger.AccountID(accountID)
	e.Reason = ledger.Reason(reason)
	e.OrderID = orderID.String
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return e, &ledger.StoreError{Op: "scan", Err: err}
	}
	e.CreatedAt = t
	return e, nil
}

// =============================================================================
// ACCOUNT REGISTRY (ledger.Registry interface)
// =============================================================================

// GetOrCreate returns the account, inserting a zero-balance row on first use.
func (s *Store) GetOrCreate(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (account_id, updated_at)
		VALUES (?, ?)
		ON CONFLICT(account_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query,
		string(id), time.Now().UTC().Format(timeLayout),
	); err != nil {
		return ledger.Account{}, &ledger.StoreError{Op: "account-create", Err: err}
	}

	return s.getAccount(ctx, id)
}

// Get returns the account, or ErrAccountNotFound.
func (s *Store) Get(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getAccount(ctx, id)
}

func (s *Store) getAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	var (
		acc       ledger.Account
		accountID string
		tier      string
		updatedAt string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, balance, tier, lifetime_spent, lifetime_bonus, updated_at
		 FROM accounts WHERE account_id = ?`,
		string(id),
	).Scan(&accountID, &acc.Balance, &tier, &acc.LifetimeSpent, &acc.LifetimeBonus, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, &ledger.StoreError{Op: "account-get", Err: err}
	}

	acc.ID = ledger.AccountID(accountID)
	acc.Tier = ledger.Tier(tier)
	acc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return acc, nil
}

// UpdateBalance overwrites only the cached balance field.
func (s *Store) UpdateBalance(ctx context.Context, id ledger.AccountID, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (account_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(id), balance, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return &ledger.StoreError{Op: "balance-update", Err: err}
	}
	return nil
}

// UpdateDerived overwrites the full derived projection.
func (s *Store) UpdateDerived(ctx context.Context, id ledger.AccountID, d ledger.Derived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (account_id, balance, tier, lifetime_spent, lifetime_bonus, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			balance = excluded.balance,
			tier = excluded.tier,
			lifetime_spent = excluded.lifetime_spent,
			lifetime_bonus = excluded.lifetime_bonus,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(id), d.Balance, string(d.Tier), d.LifetimeSpent, d.LifetimeBonus,
		d.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return &ledger.StoreError{Op: "derived-update", Err: err}
	}
	return nil
}

// ListAccounts returns all known account ids.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT account_id FROM accounts ORDER BY account_id")
	if err != nil {
		return nil, &ledger.StoreError{Op: "account-list", Err: err}
	}
	defer rows.Close()

	var ids []ledger.AccountID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ledger.StoreError{Op: "account-list", Err: err}
		}
		ids = append(ids, ledger.AccountID(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// EXPIRATION RUNS
// =============================================================================

// ExpirationRun is one recorded sweep, for audit and admin display.
type ExpirationRun struct {
	ID            string
	AccountID     string
	RetentionDays int
	Expired       int64
	BalanceAfter  int64
	RanAt         time.Time
}

// SaveExpirationRun records a completed sweep.
func (s *Store) SaveExpirationRun(ctx context.Context, r ExpirationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO expiration_runs (id, account_id, retention_days, expired, balance_after, ran_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.AccountID, r.RetentionDays, r.Expired, r.BalanceAfter,
		r.RanAt.UTC().Format(timeLayout))
	if err != nil {
		return &ledger.StoreError{Op: "expiration-run-save", Err: err}
	}
	return nil
}

// ListExpirationRuns returns recent sweeps, newest first.
func (s *Store) ListExpirationRuns(ctx context.Context, limit int) ([]ExpirationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_id, retention_days, expired, balance_after, ran_at
		FROM expiration_runs
		ORDER BY ran_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &ledger.StoreError{Op: "expiration-run-list", Err: err}
	}
	defer rows.Close()

	var runs []ExpirationRun
	for rows.Next() {
		var r ExpirationRun
		var ranAt string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.RetentionDays, &r.Expired, &r.BalanceAfter, &ranAt); err != nil {
			return nil, &ledger.StoreError{Op: "expiration-run-list", Err: err}
		}
		r.RanAt, _ = time.Parse(time.RFC3339Nano, ranAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Registry = (*Store)(nil)
)
