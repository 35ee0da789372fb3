package store

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Session is a server-side login session bound to a principal.
type Session struct {
	ID            string
	PrincipalID   int64
	RemoteAddress string
	UserAgent     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// CreateSession inserts a new session row with maxAge remaining lifetime.
func (s *Store) CreateSession(ctx context.Context, principalID int64, remoteAddr, userAgent string, maxAge time.Duration) (*Session, error) {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}
	sess := &Session{
		ID:            uuid.NewString(),
		PrincipalID:   principalID,
		RemoteAddress: remoteAddr,
		UserAgent:     userAgent,
		ExpiresAt:     time.Now().Add(maxAge),
	}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO sessions (id, principal_id, remote_address, user_agent, expires_at)
		 VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		sess.ID, sess.PrincipalID, sess.RemoteAddress, sess.UserAgent, sess.ExpiresAt,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession looks up a session by id. A missing or expired session
// returns ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.Pool.QueryRow(ctx,
		`SELECT id, principal_id, remote_address, user_agent, created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.PrincipalID, &sess.RemoteAddress, &sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sess.ExpiresAt.Before(time.Now()) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes a session row (logout).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// CleanExpiredSessions deletes every session past its expiry, returning the
// count removed.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
