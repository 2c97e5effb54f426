package wallet

import "sync"

// =============================================================================
// PER-ACCOUNT LOCKS - Single-writer serialization
// =============================================================================

// accountLocks hands out one mutex per account id. Spend's check-then-append
// is only safe when serialized per account; operations on different accounts
// stay fully parallel. Mutexes are never evicted - the working set is one
// pointer per active customer.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (a *accountLocks) get(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}
