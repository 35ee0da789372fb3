package runloop

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunWithRecoveryRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		RunWithRecovery(ctx, discardLogger(), "test-worker", func(ctx context.Context) {
			n := atomic.AddInt32(&calls, 1)
			if n < 3 {
				panic("boom")
			}
			cancel()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("expected the worker to restart after each panic and eventually stop via cancel")
	}

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected exactly 3 invocations (2 panics then a clean exit), got %d", n)
	}
}

func TestRunWithRecoveryStopsImmediatelyWhenContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	done := make(chan struct{})
	go func() {
		RunWithRecovery(ctx, discardLogger(), "test-worker", func(ctx context.Context) { called = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunWithRecovery to return immediately for an already-cancelled context")
	}
	if called {
		t.Errorf("expected the worker function to never run once the context is already cancelled")
	}
}
