package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wardloop/wardloop/internal/model"
)

// ActiveBan returns the active ban for subject, if any.
func (s *Store) ActiveBan(ctx context.Context, kind model.SubjectKind, subject string) (*model.Ban, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, subject_kind, subject, reason, created_at, expires_at, active
		 FROM bans WHERE subject_kind = $1 AND subject = $2 AND active = TRUE`,
		string(kind), subject)
	b, err := scanBan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func scanBan(row pgx.Row) (*model.Ban, error) {
	var b model.Ban
	var subjectKind string
	if err := row.Scan(&b.ID, &subjectKind, &b.Subject, &b.Reason, &b.CreatedAt, &b.ExpiresAt, &b.Active); err != nil {
		return nil, err
	}
	b.SubjectKind = model.SubjectKind(subjectKind)
	return &b, nil
}

// CreateBan writes a new active ban for subject. expiresAt nil means
// permanent. Callers must hold the per-subject lock (spec §5) and must have
// already checked ActiveBan to honor the "at most one active ban per
// subject" invariant (spec §3); a unique partial index on (subject_kind,
// subject) WHERE active backstops this at the database level.
func (s *Store) CreateBan(ctx context.Context, kind model.SubjectKind, subject, reason string, expiresAt *time.Time) (*model.Ban, error) {
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("expires_at must be after created_at")
	}
	b := &model.Ban{SubjectKind: kind, Subject: subject, Reason: reason, ExpiresAt: expiresAt, Active: true}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO bans (subject_kind, subject, reason, expires_at, active)
		 VALUES ($1,$2,$3,$4,TRUE) RETURNING id, created_at`,
		string(kind), subject, reason, expiresAt,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ban: %w", err)
	}
	return b, nil
}

// Unban deactivates the active ban for subject, if one exists.
func (s *Store) Unban(ctx context.Context, kind model.SubjectKind, subject string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE bans SET active = FALSE WHERE subject_kind = $1 AND subject = $2 AND active = TRUE`,
		string(kind), subject)
	return err
}

// ExpireBans deactivates every ban whose expires_at has passed. Run
// periodically by the expiry-sweep background worker.
func (s *Store) ExpireBans(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE bans SET active = FALSE WHERE active = TRUE AND expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BanExpirySweepLoop periodically expires lapsed bans. It does not flip a
// principal's is_active back to true — re-activation after a ban is an
// admin decision, matching spec §3's "deactivated by expiry sweep or admin"
// wording for bans themselves, not for the principal row they reference.
func (s *Store) BanExpirySweepLoop(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireBans(ctx)
			if err != nil {
				logger.Error("ban expiry sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("expired bans", "count", n)
			}
		}
	}
}
