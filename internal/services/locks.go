package services

import (
	"sync"

	"github.com/google/uuid"
)

// tradeLocks hands out one mutex per trade id, so a trade's transitions have
// a single writer while unrelated trades proceed in parallel. Entries are
// reference-counted and removed when the last holder unlocks.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tradeLock
}

type tradeLock struct {
	mu   sync.Mutex
	refs int
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{locks: make(map[uuid.UUID]*tradeLock)}
}

func (t *tradeLocks) lock(id uuid.UUID) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &tradeLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
}

func (t *tradeLocks) unlock(id uuid.UUID) {
	t.mu.Lock()
	l := t.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()

	l.mu.Unlock()
}
