package ratelimit

import (
	"testing"
	"time"
)

func TestInMemoryAllowsUnderBudget(t *testing.T) {
	l := NewInMemory()
	key := Key("1.2.3.4", "/api/widgets")
	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow(key, 5, time.Minute)
		if !allowed {
			t.Fatalf("expected event %d to be allowed under budget", i)
		}
	}
}

func TestInMemoryRejectsOverBudget(t *testing.T) {
	l := NewInMemory()
	key := Key("1.2.3.4", "/api/widgets")
	for i := 0; i < 5; i++ {
		l.Allow(key, 5, time.Minute)
	}
	allowed, retryAfter := l.Allow(key, 5, time.Minute)
	if allowed {
		t.Fatalf("expected the 6th event to exceed the budget")
	}
	if retryAfter <= 0 {
		t.Errorf("expected a positive retry-after duration, got %v", retryAfter)
	}
}

func TestInMemoryWindowSlides(t *testing.T) {
	l := NewInMemory()
	key := Key("1.2.3.4", "/api/widgets")
	window := 20 * time.Millisecond
	for i := 0; i < 3; i++ {
		if allowed, _ := l.Allow(key, 3, window); !allowed {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if allowed, _ := l.Allow(key, 3, window); allowed {
		t.Fatalf("4th event within the window should be rejected")
	}
	time.Sleep(30 * time.Millisecond)
	if allowed, _ := l.Allow(key, 3, window); !allowed {
		t.Fatalf("event after the window elapsed should be allowed again")
	}
}

func TestInMemoryKeysAreIndependent(t *testing.T) {
	l := NewInMemory()
	for i := 0; i < 3; i++ {
		l.Allow(Key("1.1.1.1", "/a"), 3, time.Minute)
	}
	allowed, _ := l.Allow(Key("2.2.2.2", "/a"), 3, time.Minute)
	if !allowed {
		t.Fatalf("a different remote address must have its own budget")
	}
}

func TestRetryAfterHeaderRoundsUpToAtLeastOneSecond(t *testing.T) {
	if got := RetryAfterHeader(10 * time.Millisecond); got != "1" {
		t.Errorf("expected sub-second durations to round up to 1, got %q", got)
	}
	if got := RetryAfterHeader(3 * time.Second); got != "3" {
		t.Errorf("expected 3s to format as %q, got %q", "3", got)
	}
}
