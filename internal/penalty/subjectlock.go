package penalty

import "sync"

// subjectLocks is a per-subject mutex map keyed by "p:<id>" or "a:<addr>",
// with reference-counted eviction so the map does not grow unboundedly —
// the "weak-reference eviction" spec §9 calls for, implemented here as a
// refcount since Go has no portable weak map.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key, creating it if needed, and returns an
// unlock function that releases it and evicts the entry once unreferenced.
func (sl *subjectLocks) Lock(key string) func() {
	sl.mu.Lock()
	rm, ok := sl.locks[key]
	if !ok {
		rm = &refMutex{}
		sl.locks[key] = rm
	}
	rm.refs++
	sl.mu.Unlock()

	rm.mu.Lock()
	return func() {
		rm.mu.Unlock()
		sl.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(sl.locks, key)
		}
		sl.mu.Unlock()
	}
}
