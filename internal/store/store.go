// Package store is the persistent store for alerts, bans, admin actions,
// forwarder configuration, and the operator-introspection web_requests
// ledger. It wraps a pgx connection pool, exactly as the teacher's own
// db.DB did for its WAF tables.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps a pgx connection pool and provides CRUD methods for every
// table named in spec §6.
type Store struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates a Store, connects to PostgreSQL, and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{Pool: pool, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Migrate executes the embedded schema and ensures the current and next
// month's alert partitions exist.
func (s *Store) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	s.logger.Info("store migrated")

	return s.EnsureCurrentAndNextAlertPartitions(ctx)
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Partition management (grounded on db.EnsurePartition / EnsureCurrentAndNextPartitions)
// ---------------------------------------------------------------------------

// EnsureAlertPartition creates a monthly partition of the alerts table for
// the month containing t, if it does not already exist.
func (s *Store) EnsureAlertPartition(ctx context.Context, t time.Time) error {
	year, month, _ := t.Date()
	name := fmt.Sprintf("alerts_%d_%02d", year, month)
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	quotedName := pgx.Identifier{name}.Sanitize()
	sql := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF alerts FOR VALUES FROM ('%s') TO ('%s')`,
		quotedName, start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
	if _, err := s.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}
	s.logger.Info("alert partition ensured", "table", name)
	return nil
}

// EnsureCurrentAndNextAlertPartitions creates partitions for the current
// and next month, so inserts near a month boundary never fail.
func (s *Store) EnsureCurrentAndNextAlertPartitions(ctx context.Context) error {
	now := time.Now().UTC()
	if err := s.EnsureAlertPartition(ctx, now); err != nil {
		return err
	}
	return s.EnsureAlertPartition(ctx, now.AddDate(0, 1, 0))
}

// PartitionMaintenanceLoop periodically ensures upcoming partitions exist,
// run as a background worker under runloop.RunWithRecovery.
func (s *Store) PartitionMaintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.EnsureCurrentAndNextAlertPartitions(ctx); err != nil {
				s.logger.Error("partition maintenance failed", "err", err)
			}
		}
	}
}
