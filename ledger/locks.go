package ledger

import (
	"context"
	"slices"
	"sync"
)

// =============================================================================
// LOCK MANAGER - Per-entity exclusive access
// =============================================================================

// LockManager hands out exclusive locks keyed by entity. Acquire sorts and
// deduplicates its keys, so every caller takes locks in the same global order
// and two operations touching overlapping entities cannot deadlock.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	// sem has capacity 1: a send acquires, a receive releases.
	sem  chan struct{}
	refs int
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*entityLock)}
}

func playerKey(id PlayerID) string { return "player:" + string(id) }
func matchKey(id MatchID) string   { return "match:" + string(id) }

// Acquire blocks until every key is held or ctx is done. The returned release
// func must be called exactly once, and is a no-op on error.
func (m *LockManager) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := m.ref(keys)
	held := 0

	unlock := func() {
		for i := held - 1; i >= 0; i-- {
			<-entries[i].sem
		}
		m.unref(keys)
	}

	for _, e := range entries {
		select {
		case e.sem <- struct{}{}:
			held++
		case <-ctx.Done():
			unlock()
			return func() {}, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (m *LockManager) ref(keys []string) []*entityLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*entityLock, len(keys))
	for i, k := range keys {
		e, ok := m.locks[k]
		if !ok {
			e = &entityLock{sem: make(chan struct{}, 1)}
			m.locks[k] = e
		}
		e.refs++
		entries[i] = e
	}
	return entries
}

func (m *LockManager) unref(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		e := m.locks[k]
		e.refs--
		if e.refs == 0 {
			delete(m.locks, k)
		}
	}
}

// Len is the number of keys currently referenced.
func (m *LockManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
