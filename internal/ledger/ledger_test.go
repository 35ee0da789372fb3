package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSource struct {
	allCalls    int32
	recentCalls int32
	allValue    int
	recentValue int
}

func (f *fakeSource) CountAllForPrincipal(ctx context.Context, principalID int64, since time.Time) (int, error) {
	atomic.AddInt32(&f.allCalls, 1)
	return f.allValue, nil
}

func (f *fakeSource) CountRecentForAddress(ctx context.Context, remoteAddress string, window time.Duration) (int, error) {
	atomic.AddInt32(&f.recentCalls, 1)
	return f.recentValue, nil
}

func TestLedgerCountAllCachesWithinTTL(t *testing.T) {
	src := &fakeSource{allValue: 3}
	l := New(src, time.Minute, 100)

	n, err := l.CountAll(context.Background(), 42)
	if err != nil || n != 3 {
		t.Fatalf("unexpected result: %d, %v", n, err)
	}
	n, err = l.CountAll(context.Background(), 42)
	if err != nil || n != 3 {
		t.Fatalf("unexpected result: %d, %v", n, err)
	}
	if src.allCalls != 1 {
		t.Errorf("expected exactly one source query under TTL, got %d", src.allCalls)
	}
}

func TestLedgerCountAllRequeriesAfterTTL(t *testing.T) {
	src := &fakeSource{allValue: 1}
	l := New(src, time.Millisecond, 100)

	if _, err := l.CountAll(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := l.CountAll(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if src.allCalls != 2 {
		t.Errorf("expected the cache to expire and requery, got %d calls", src.allCalls)
	}
}

func TestLedgerCountRecentIsKeyedByWindow(t *testing.T) {
	src := &fakeSource{recentValue: 5}
	l := New(src, time.Minute, 100)

	if _, err := l.CountRecent(context.Background(), "1.2.3.4", 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CountRecent(context.Background(), "1.2.3.4", time.Hour); err != nil {
		t.Fatal(err)
	}
	if src.recentCalls != 2 {
		t.Errorf("expected distinct windows to bypass the cache, got %d calls", src.recentCalls)
	}
}

func TestLedgerEvictsWhenFull(t *testing.T) {
	src := &fakeSource{allValue: 1}
	l := New(src, time.Minute, 1)

	if _, err := l.CountAll(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CountAll(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CountAll(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	// With a max of 1 entry, caching key 2 evicted key 1, so asking for
	// key 1 again must re-query the source.
	if src.allCalls != 3 {
		t.Errorf("expected eviction to force a requery, got %d calls", src.allCalls)
	}
}
