package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/wardloop/wardloop/internal/model"
)

// This file stands in for the external identity directory spec §1 names as
// a separate collaborator ("a map email/username -> principal id"). The
// core only reads it and flips is_active (spec §3); these methods are that
// narrow surface, materialized here so the module is runnable standalone.

func (s *Store) GetPrincipal(ctx context.Context, id int64) (*model.Principal, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, email, display_name, role, is_active, created_at FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*model.Principal, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, email, display_name, role, is_active, created_at FROM principals WHERE lower(email) = lower($1)`, email)
	p, err := scanPrincipal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetPrincipalByUsername looks up a principal by its display name, the
// closest analogue this schema has to a username (spec §4.6's identity
// resolver also accepts a "username" form field).
func (s *Store) GetPrincipalByUsername(ctx context.Context, username string) (*model.Principal, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, email, display_name, role, is_active, created_at FROM principals WHERE lower(display_name) = lower($1)`, username)
	p, err := scanPrincipal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPrincipal(row pgx.Row) (*model.Principal, error) {
	var p model.Principal
	var role string
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &role, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	return &p, nil
}

// SetPrincipalActive flips is_active. This is the only mutation the core
// performs on the identity directory.
func (s *Store) SetPrincipalActive(ctx context.Context, id int64, active bool) error {
	_, err := s.Pool.Exec(ctx, `UPDATE principals SET is_active = $1 WHERE id = $2`, active, id)
	return err
}

// ListPrincipals lists principals matching an optional free-text query,
// role, and active filter, for the admin GET /admin/users surface.
func (s *Store) ListPrincipals(ctx context.Context, q string, role *model.Role, active *bool, skip, limit int) ([]model.Principal, int, error) {
	var clauses []string
	var args []any

	if q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		clauses = append(clauses, fmt.Sprintf("(lower(email) LIKE $%d OR lower(display_name) LIKE $%d)", len(args), len(args)))
	}
	if role != nil {
		args = append(args, string(*role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if active != nil {
		args = append(args, *active)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM principals %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count principals: %w", err)
	}

	if limit <= 0 || limit > 200 {
		limit = 200
	}
	pagedArgs := append(append([]any{}, args...), limit, skip)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(
		`SELECT id, email, display_name, role, is_active, created_at FROM principals %s ORDER BY id LIMIT $%d OFFSET $%d`,
		where, len(pagedArgs)-1, len(pagedArgs)), pagedArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []model.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}
