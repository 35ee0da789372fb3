package auth

import (
	"context"
	"net/http"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/model"
)

type ctxKey string

const principalCtxKey ctxKey = "principal"

// RequireAuth is chi middleware that validates the session cookie and
// rejects the request if there is none.
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := sm.Validate(r.Context(), r)
			if err != nil || principal == nil {
				apierr.Write(w, apierr.New(http.StatusUnauthorized, apierr.Forbidden, "authentication required"))
				return
			}
			ctx := context.WithValue(r.Context(), principalCtxKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin wraps RequireAuth and additionally requires role ADMIN,
// gating every endpoint under spec §6's admin API.
func RequireAdmin(sm *SessionManager) func(http.Handler) http.Handler {
	requireAuth := RequireAuth(sm)
	return func(next http.Handler) http.Handler {
		return requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := FromContext(r.Context())
			if principal == nil || principal.Role != model.RoleAdmin {
				apierr.Write(w, apierr.ForbiddenErr("admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// FromContext extracts the authenticated principal set by RequireAuth.
func FromContext(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalCtxKey).(*model.Principal)
	return p
}

// SessionPrincipalFunc adapts SessionManager to identity.SessionPrincipal,
// letting the Identity Resolver consult the authenticated session first
// (spec §4.6's source order) without internal/identity importing
// internal/auth.
func SessionPrincipalFunc(sm *SessionManager) func(r *http.Request) (int64, bool) {
	return func(r *http.Request) (int64, bool) {
		principal, err := sm.Validate(r.Context(), r)
		if err != nil || principal == nil {
			return 0, false
		}
		return principal.ID, true
	}
}
