// Package runloop supervises long-running background workers so a single
// panic or transient error cannot take down the whole process.
package runloop

import (
	"context"
	"log/slog"
	"time"
)

// Worker is a background task that blocks until ctx is cancelled or it
// encounters an unrecoverable error, then returns.
type Worker func(ctx context.Context)

// RunWithRecovery runs fn repeatedly, recovering panics and backing off
// exponentially (1s, 2s, 4s, ... capped at 5m) between restarts, until ctx
// is cancelled.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn Worker) {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		if ctx.Err() != nil {
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("worker panicked", "worker", name, "panic", r)
				}
			}()
			fn(ctx)
		}()

		if ctx.Err() != nil {
			return
		}

		logger.Warn("worker exited, restarting", "worker", name, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
