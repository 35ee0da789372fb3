package store

import (
	"context"
	"fmt"

	"github.com/wardloop/wardloop/internal/model"
)

// AppendAdminAction writes one audit-log row. This is append-only: there is
// no update or delete method by design (spec §3 "append-only audit log").
func (s *Store) AppendAdminAction(ctx context.Context, actorPrincipalID *int64, kind model.AdminActionKind, target, note string) (*model.AdminAction, error) {
	a := &model.AdminAction{ActorPrincipalID: actorPrincipalID, Kind: kind, Target: target, Note: note}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO admin_actions (actor_principal_id, kind, target, note) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		actorPrincipalID, string(kind), target, note,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert admin action: %w", err)
	}
	return a, nil
}

// ListAdminActionsForTarget returns the audit trail for one subject
// (principal id or address), most recent first, powering
// GET /admin/users/{id}/activity.
func (s *Store) ListAdminActionsForTarget(ctx context.Context, target string, limit int) ([]model.AdminAction, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, actor_principal_id, kind, target, created_at, note FROM admin_actions WHERE target = $1 ORDER BY created_at DESC LIMIT $2`,
		target, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin actions: %w", err)
	}
	defer rows.Close()

	var out []model.AdminAction
	for rows.Next() {
		var a model.AdminAction
		var kind string
		if err := rows.Scan(&a.ID, &a.ActorPrincipalID, &kind, &a.Target, &a.CreatedAt, &a.Note); err != nil {
			return nil, err
		}
		a.Kind = model.AdminActionKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ExistsAdminAction reports whether an action of kind already exists for
// target — used by the admin-exemption testable property to check, at
// query time, whether an AUTO_SUSPEND/AUTO_BAN was ever recorded for a
// principal (spec §8 invariant 6).
func (s *Store) ExistsAdminAction(ctx context.Context, target string, kind model.AdminActionKind) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_actions WHERE target = $1 AND kind = $2)`, target, string(kind),
	).Scan(&exists)
	return exists, err
}
