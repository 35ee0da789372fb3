package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/wardloop/wardloop/internal/model"
)

func (s *Store) CreateForwarder(ctx context.Context, fc model.ForwarderConfig) (*model.ForwarderConfig, error) {
	kinds := make([]string, len(fc.EventKinds))
	for i, k := range fc.EventKinds {
		kinds[i] = string(k)
	}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO forwarder_configs (id, endpoint, secret, event_kinds, min_severity, enabled, retries, timeout_sec)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING created_at`,
		fc.ID, fc.Endpoint, fc.Secret, kinds, string(fc.MinSeverity), fc.Enabled, fc.Retries, fc.TimeoutSec,
	).Scan(&fc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert forwarder: %w", err)
	}
	return &fc, nil
}

func (s *Store) UpdateForwarder(ctx context.Context, fc model.ForwarderConfig) error {
	kinds := make([]string, len(fc.EventKinds))
	for i, k := range fc.EventKinds {
		kinds[i] = string(k)
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE forwarder_configs SET endpoint=$1, secret=$2, event_kinds=$3, min_severity=$4, enabled=$5, retries=$6, timeout_sec=$7 WHERE id=$8`,
		fc.Endpoint, fc.Secret, kinds, string(fc.MinSeverity), fc.Enabled, fc.Retries, fc.TimeoutSec, fc.ID)
	if err != nil {
		return fmt.Errorf("update forwarder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteForwarder(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM forwarder_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete forwarder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetForwarder(ctx context.Context, id string) (*model.ForwarderConfig, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, endpoint, secret, event_kinds, min_severity, enabled, retries, timeout_sec, created_at FROM forwarder_configs WHERE id = $1`, id)
	fc, err := scanForwarder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fc, nil
}

func (s *Store) ListForwarders(ctx context.Context) ([]model.ForwarderConfig, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, endpoint, secret, event_kinds, min_severity, enabled, retries, timeout_sec, created_at FROM forwarder_configs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list forwarders: %w", err)
	}
	defer rows.Close()

	var out []model.ForwarderConfig
	for rows.Next() {
		fc, err := scanForwarder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fc)
	}
	return out, rows.Err()
}

func scanForwarder(row pgx.Row) (*model.ForwarderConfig, error) {
	var fc model.ForwarderConfig
	var kinds []string
	var minSeverity string
	if err := row.Scan(&fc.ID, &fc.Endpoint, &fc.Secret, &kinds, &minSeverity, &fc.Enabled, &fc.Retries, &fc.TimeoutSec, &fc.CreatedAt); err != nil {
		return nil, err
	}
	fc.MinSeverity = model.Severity(minSeverity)
	fc.EventKinds = make([]model.Kind, len(kinds))
	for i, k := range kinds {
		fc.EventKinds[i] = model.Kind(k)
	}
	return &fc, nil
}
