package store

import (
	"context"
	"fmt"

	"github.com/wardloop/wardloop/internal/model"
)

// InsertWebRequest records one request's outcome for operator introspection,
// independent of whether it was classified as an attack (spec §6's optional
// web_requests table).
func (s *Store) InsertWebRequest(ctx context.Context, wr model.WebRequest) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO web_requests (method, route, status, latency_ms, remote_address) VALUES ($1,$2,$3,$4,$5)`,
		wr.Method, wr.Route, wr.Status, wr.LatencyMs, wr.RemoteAddr)
	return err
}

// ListWebRequests returns the most recent web_requests rows, newest first,
// paged by skip/limit. It takes no filters, and there is no export.
func (s *Store) ListWebRequests(ctx context.Context, skip, limit int) ([]model.WebRequest, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM web_requests`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count web_requests: %w", err)
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, created_at, method, route, status, latency_ms, remote_address FROM web_requests ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list web_requests: %w", err)
	}
	defer rows.Close()

	var out []model.WebRequest
	for rows.Next() {
		var wr model.WebRequest
		if err := rows.Scan(&wr.ID, &wr.CreatedAt, &wr.Method, &wr.Route, &wr.Status, &wr.LatencyMs, &wr.RemoteAddr); err != nil {
			return nil, 0, err
		}
		out = append(out, wr)
	}
	return out, total, rows.Err()
}

// ClearWebRequests deletes every row, returning the count deleted.
func (s *Store) ClearWebRequests(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM web_requests`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
