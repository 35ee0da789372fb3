package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/store"
)

const (
	SessionCookie = "wardloop_sid"
	SessionMaxAge = 30 * 24 * time.Hour
)

// PrincipalStore is the subset of internal/store SessionManager needs.
type PrincipalStore interface {
	CreateSession(ctx context.Context, principalID int64, remoteAddr, userAgent string, maxAge time.Duration) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
	GetPrincipal(ctx context.Context, id int64) (*model.Principal, error)
}

// SessionManager issues and validates the admin/dashboard login cookie.
type SessionManager struct {
	store  PrincipalStore
	logger *slog.Logger
	secure bool
}

func NewSessionManager(s PrincipalStore, logger *slog.Logger, production bool) *SessionManager {
	return &SessionManager{store: s, logger: logger, secure: production}
}

// Create starts a session for principalID and sets the cookie.
func (sm *SessionManager) Create(ctx context.Context, w http.ResponseWriter, principalID int64, r *http.Request) error {
	sess, err := sm.store.CreateSession(ctx, principalID, r.RemoteAddr, r.UserAgent(), SessionMaxAge)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})
	return nil
}

// Validate reads the cookie and returns the principal, or nil if absent,
// expired, or unknown.
func (sm *SessionManager) Validate(ctx context.Context, r *http.Request) (*model.Principal, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, nil
	}
	sess, err := sm.store.GetSession(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sm.store.GetPrincipal(ctx, sess.PrincipalID)
}

// Destroy deletes the session and clears the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		sm.store.DeleteSession(ctx, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})
}

// CleanupLoop purges expired sessions periodically.
func (sm *SessionManager) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sm.store.CleanExpiredSessions(ctx)
			if err != nil {
				sm.logger.Error("session cleanup failed", "err", err)
				continue
			}
			if deleted > 0 {
				sm.logger.Info("cleaned expired sessions", "count", deleted)
			}
		}
	}
}
