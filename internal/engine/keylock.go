package engine

import "sync"

// keyLock provides per-key mutual exclusion.
//
// The reconciler holds the lock for an incident key across the whole
// load -> merge -> persist -> enqueue sequence, so concurrent events for the
// same incident serialize while events for different incidents proceed in
// parallel. A non-serialized interleaving could read a stale prior snapshot
// and overwrite a concurrently persisted newer one (lost update).
//
// Entries are reference counted and removed when the last holder releases,
// so the map does not grow with the total number of incidents ever seen.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock acquires the mutex for key, blocking while another goroutine holds it.
func (l *keyLock) Lock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyLockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry when unreferenced.
func (l *keyLock) Unlock(key string) {
	l.mu.Lock()
	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
