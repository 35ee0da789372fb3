package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wardloop/wardloop/internal/model"
)

// CreateAlert inserts finding as an alert attributed to principalID and/or
// remoteAddress, deduplicating within the dedupe window per spec §4.2/§4.8:
// if a row already exists for (principal_id OR remote_address, kind,
// signature) created within dedupeWindow, no new row is written and the
// existing row's id is returned instead.
//
// Callers MUST hold the per-subject serialization lock described in spec §5
// before calling this — it is not safe to call concurrently for the same
// subject without one, since the dedupe check and insert are not wrapped in
// a single statement here (kept as two round-trips to mirror the teacher's
// own read-then-write CRUD idiom; correctness relies on the caller's mutex,
// not a database-level atomic upsert).
func (s *Store) CreateAlert(ctx context.Context, principalID *int64, remoteAddress string, route, method string, f model.Finding, userAgent string, metadata map[string]string, dedupeWindow time.Duration) (*model.Alert, bool, error) {
	if existing, found, err := s.findDuplicateAlert(ctx, principalID, remoteAddress, f.Kind, f.Signature, dedupeWindow); err != nil {
		return nil, false, fmt.Errorf("dedupe check: %w", err)
	} else if found {
		return existing, false, nil
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	a := &model.Alert{
		PrincipalID:   principalID,
		RemoteAddress: remoteAddress,
		Route:         route,
		Method:        method,
		Kind:          f.Kind,
		Severity:      f.Severity,
		RiskScore:     f.RiskScore(),
		Signature:     f.Signature,
		Payload:       f.Fragment,
		UserAgent:     userAgent,
		Status:        model.StatusNew,
		Metadata:      metadata,
	}

	err = s.Pool.QueryRow(ctx,
		`INSERT INTO alerts (principal_id, remote_address, route, method, kind, severity, risk_score, signature, payload, user_agent, status, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id, created_at`,
		a.PrincipalID, nullableString(a.RemoteAddress), a.Route, a.Method, string(a.Kind), string(a.Severity),
		a.RiskScore, a.Signature, a.Payload, a.UserAgent, string(a.Status), metaJSON,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert alert: %w", err)
	}
	return a, true, nil
}

func (s *Store) findDuplicateAlert(ctx context.Context, principalID *int64, remoteAddress string, kind model.Kind, signature string, window time.Duration) (*model.Alert, bool, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, created_at, principal_id, COALESCE(remote_address,''), route, method, kind, severity, risk_score, signature, payload, user_agent, status, metadata
		 FROM alerts
		 WHERE kind = $1 AND signature = $2 AND created_at > now() - $3::interval
		   AND ((principal_id IS NOT NULL AND principal_id = $4) OR (remote_address = $5))
		 ORDER BY created_at DESC LIMIT 1`,
		string(kind), signature, fmt.Sprintf("%d seconds", int(window.Seconds())), principalID, remoteAddress,
	)
	a, err := scanAlert(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return a, true, nil
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	var principalID *int64
	var remoteAddress, kind, severity, status string
	var metaJSON []byte
	if err := row.Scan(&a.ID, &a.CreatedAt, &principalID, &remoteAddress, &a.Route, &a.Method, &kind, &severity, &a.RiskScore, &a.Signature, &a.Payload, &a.UserAgent, &status, &metaJSON); err != nil {
		return nil, err
	}
	a.PrincipalID = principalID
	a.RemoteAddress = remoteAddress
	a.Kind = model.Kind(kind)
	a.Severity = model.Severity(severity)
	a.Status = model.Status(status)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &a.Metadata)
	}
	return &a, nil
}

// GetAlert fetches a single alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, created_at, principal_id, COALESCE(remote_address,''), route, method, kind, severity, risk_score, signature, payload, user_agent, status, metadata
		 FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// UpdateAlertStatus applies a monotonic status transition: once an alert has
// left NEW it is never written back to NEW (spec §3 invariant).
func (s *Store) UpdateAlertStatus(ctx context.Context, id int64, newStatus model.Status) (*model.Alert, error) {
	a, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() && newStatus == model.StatusNew {
		return nil, fmt.Errorf("cannot revert alert %d from %s to NEW", id, a.Status)
	}
	if _, err := s.Pool.Exec(ctx, `UPDATE alerts SET status = $1 WHERE id = $2`, string(newStatus), id); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	a.Status = newStatus
	return a, nil
}

type filterArgs struct {
	clauses []string
	args    []any
}

func (fa *filterArgs) add(clause string, arg any) {
	fa.args = append(fa.args, arg)
	fa.clauses = append(fa.clauses, fmt.Sprintf(clause, len(fa.args)))
}

func buildAlertFilter(f model.AlertFilter) filterArgs {
	fa := filterArgs{}
	if f.Severity != nil {
		fa.add("severity = $%d", string(*f.Severity))
	}
	if f.Kind != nil {
		fa.add("kind = $%d", string(*f.Kind))
	}
	if f.Status != nil {
		fa.add("status = $%d", string(*f.Status))
	}
	if f.PrincipalID != nil {
		fa.add("principal_id = $%d", *f.PrincipalID)
	}
	if f.RemoteAddress != nil {
		fa.add("remote_address = $%d", *f.RemoteAddress)
	}
	if f.After != nil {
		fa.add("created_at > $%d", *f.After)
	}
	if f.Before != nil {
		fa.add("created_at < $%d", *f.Before)
	}
	if f.CursorID != nil {
		fa.add("id < $%d", *f.CursorID)
	}
	return fa
}

func (fa filterArgs) whereSQL() string {
	if len(fa.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(fa.clauses, " AND ")
}

// QueryAlerts lists alerts matching f, ordered created_at DESC, id DESC, and
// returns the exact total count under the same filter (spec §4.2).
func (s *Store) QueryAlerts(ctx context.Context, f model.AlertFilter) (results []model.Alert, total int, err error) {
	fa := buildAlertFilter(f)

	var count int64
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM alerts %s`, fa.whereSQL())
	if err := s.Pool.QueryRow(ctx, countSQL, fa.args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	// Default page size is 200 for interactive listing; a caller that
	// explicitly asks for more (export, spec §4.2) may go up to the
	// 100,000-row export cap.
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 100000 {
		limit = 100000
	}
	pagedArgs := append(append([]any{}, fa.args...), limit, f.Skip)
	listSQL := fmt.Sprintf(
		`SELECT id, created_at, principal_id, COALESCE(remote_address,''), route, method, kind, severity, risk_score, signature, payload, user_agent, status, metadata
		 FROM alerts %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		fa.whereSQL(), len(pagedArgs)-1, len(pagedArgs))

	rows, err := s.Pool.Query(ctx, listSQL, pagedArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, int(count), nil
}

// DeleteAlerts removes every alert matching f (admin-only bulk clear) and
// returns the count deleted.
func (s *Store) DeleteAlerts(ctx context.Context, f model.AlertFilter) (int64, error) {
	fa := buildAlertFilter(f)
	sql := fmt.Sprintf(`DELETE FROM alerts %s`, fa.whereSQL())
	tag, err := s.Pool.Exec(ctx, sql, fa.args...)
	if err != nil {
		return 0, fmt.Errorf("delete alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
