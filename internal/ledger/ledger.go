// Package ledger exposes the Offense Ledger's two pure query functions over
// the Alert table, with a small non-authoritative cache (spec §4.3).
package ledger

import (
	"context"
	"sync"
	"time"
)

// CountSource is the subset of the store the Ledger queries. Kept as an
// interface so the Penalty Engine's tests can substitute a fake.
type CountSource interface {
	CountAllForPrincipal(ctx context.Context, principalID int64, since time.Time) (int, error)
	CountRecentForAddress(ctx context.Context, remoteAddress string, window time.Duration) (int, error)
}

type cacheEntry struct {
	value int
	at    time.Time
}

// Ledger wraps CountSource with a TTL cache. The cache is never treated as
// ground truth: a miss or an expired entry always re-queries the store
// (spec §9: "Cache aggressively but do not treat cache as ground truth").
type Ledger struct {
	source CountSource
	ttl    time.Duration

	mu          sync.Mutex
	allCache    map[int64]cacheEntry
	recentCache map[string]cacheEntry
	maxEntries  int
}

func New(source CountSource, ttl time.Duration, maxEntries int) *Ledger {
	return &Ledger{
		source:      source,
		ttl:         ttl,
		allCache:    make(map[int64]cacheEntry),
		recentCache: make(map[string]cacheEntry),
		maxEntries:  maxEntries,
	}
}

// CountAll returns count_all(principal_id) — alerts attributed to this
// principal since the beginning of time.
func (l *Ledger) CountAll(ctx context.Context, principalID int64) (int, error) {
	l.mu.Lock()
	if e, ok := l.allCache[principalID]; ok && time.Since(e.at) < l.ttl {
		l.mu.Unlock()
		return e.value, nil
	}
	l.mu.Unlock()

	n, err := l.source.CountAllForPrincipal(ctx, principalID, time.Time{})
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.evictIfFull(l.allCache)
	l.allCache[principalID] = cacheEntry{value: n, at: time.Now()}
	l.mu.Unlock()
	return n, nil
}

// CountRecent returns count_recent(remote_address, window) — alerts from
// this address in the trailing window.
func (l *Ledger) CountRecent(ctx context.Context, remoteAddress string, window time.Duration) (int, error) {
	key := remoteAddress + "|" + window.String()

	l.mu.Lock()
	if e, ok := l.recentCache[key]; ok && time.Since(e.at) < l.ttl {
		l.mu.Unlock()
		return e.value, nil
	}
	l.mu.Unlock()

	n, err := l.source.CountRecentForAddress(ctx, remoteAddress, window)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.evictIfFullKeyed(l.recentCache)
	l.recentCache[key] = cacheEntry{value: n, at: time.Now()}
	l.mu.Unlock()
	return n, nil
}

// evictIfFull drops one arbitrary entry once the cache reaches maxEntries,
// a cheap stand-in for LRU eviction at spec §4.3's suggested 10000-entry cap.
func (l *Ledger) evictIfFull(m map[int64]cacheEntry) {
	if l.maxEntries <= 0 || len(m) < l.maxEntries {
		return
	}
	for k := range m {
		delete(m, k)
		return
	}
}

func (l *Ledger) evictIfFullKeyed(m map[string]cacheEntry) {
	if l.maxEntries <= 0 || len(m) < l.maxEntries {
		return
	}
	for k := range m {
		delete(m, k)
		return
	}
}
