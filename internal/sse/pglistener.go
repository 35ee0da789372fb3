package sse

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertChannel is the single Postgres NOTIFY channel alerts are published
// on; every admin stream subscriber listens on the same Hub key (spec §6's
// GET /admin/alerts/stream has no per-tenant partitioning).
const AlertChannel = "alert_stream"

// PGListener bridges Postgres LISTEN/NOTIFY to the SSE hub, so an alert
// inserted by any process instance reaches every connected admin stream.
type PGListener struct {
	pool   *pgxpool.Pool
	hub    *Hub
	logger *slog.Logger
}

func NewPGListener(pool *pgxpool.Pool, hub *Hub, logger *slog.Logger) *PGListener {
	return &PGListener{pool: pool, hub: hub, logger: logger}
}

// Listen subscribes to the alert_stream channel and fans out to the hub. It
// blocks until ctx is cancelled or the connection errors; run it under
// runloop.RunWithRecovery so a dropped connection reconnects.
func (pl *PGListener) Listen(ctx context.Context) {
	conn, err := pl.pool.Acquire(ctx)
	if err != nil {
		pl.logger.Error("pg-listen: acquire connection failed", "err", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+AlertChannel); err != nil {
		pl.logger.Error("pg-listen: LISTEN failed", "err", err)
		return
	}
	pl.logger.Info("pg-listen: subscribed to alert_stream")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pl.logger.Error("pg-listen: notification error", "err", err)
			return
		}
		pl.hub.Publish(AlertChannel, Event{Type: "alert", Data: []byte(notification.Payload)})
	}
}
