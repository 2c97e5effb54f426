// Package store provides Store and Registry implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/bonus-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	entries  map[ledger.AccountID][]ledger.Entry
	accounts map[ledger.AccountID]ledger.Account
	orders   map[orderKey]bool
}

type orderKey struct {
	Account ledger.AccountID
	OrderID string
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[ledger.AccountID][]ledger.Entry),
		accounts: make(map[ledger.AccountID]ledger.Account),
		orders:   make(map[orderKey]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Reason == ledger.ReasonOrderAccrual && e.OrderID != "" {
		k := orderKey{Account: e.AccountID, OrderID: e.OrderID}
		if m.orders[k] {
			return ledger.ErrDuplicateOrderAccrual
		}
		m.orders[k] = true
	}

	list := m.entries[e.AccountID]

	// Insert keeping (CreatedAt, ID) order so ListByAccount is a plain copy.
	i := sort.Search(len(list), func(i int) bool {
		if !list[i].CreatedAt.Equal(e.CreatedAt) {
			return list[i].CreatedAt.After(e.CreatedAt)
		}
		return list[i].ID > e.ID
	})
	list = append(list, ledger.Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	m.entries[e.AccountID] = list
	return nil
}

func (m *Memory) ListByAccount(_ context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Entry, len(m.entries[id]))
	copy(result, m.entries[id])
	return result, nil
}

func (m *Memory) HasOrderAccrual(_ context.Context, id ledger.AccountID, orderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[orderKey{Account: id, OrderID: orderID}], nil
}

// =============================================================================
// REGISTRY (ledger.Registry interface)
// =============================================================================

func (m *Memory) GetOrCreate(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[id]; ok {
		return acc, nil
	}
	acc := ledger.Account{ID: id, Tier: ledger.TierStandard, UpdatedAt: time.Now()}
	m.accounts[id] = acc
	return acc, nil
}

func (m *Memory) Get(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acc, nil
}

func (m *Memory) UpdateBalance(_ context.Context, id ledger.AccountID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.accounts[id]
	acc.ID = id
	acc.Balance = balance
	acc.UpdatedAt = time.Now()
	m.accounts[id] = acc
	return nil
}

func (m *Memory) UpdateDerived(_ context.Context, id ledger.AccountID, d ledger.Derived) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.accounts[id]
	acc.ID = id
	acc.Balance = d.Balance
	acc.LifetimeBonus = d.LifetimeBonus
	acc.LifetimeSpent = d.LifetimeSpent
	acc.Tier = d.Tier
	acc.UpdatedAt = d.UpdatedAt
	m.accounts[id] = acc
	return nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]ledger.AccountID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]ledger.AccountID, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var (
	_ ledger.Store    = (*Memory)(nil)
	_ ledger.Registry = (*Memory)(nil)
)
