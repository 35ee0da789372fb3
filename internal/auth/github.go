package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/model"
)

// OAuthConfig configures the GitHub OAuth2 login flow used to authenticate
// admin operators (SPEC_FULL.md's ambient auth surface).
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// Directory is the subset of internal/store the OAuth handler needs to
// resolve a GitHub identity to a Principal.
type Directory interface {
	GetPrincipalByEmail(ctx context.Context, email string) (*model.Principal, error)
}

// OAuthHandler drives the GitHub OAuth2 "login with GitHub" flow for the
// admin dashboard, grounded on go-github's client and x/oauth2's config —
// the teacher's own stdlib HTTP exchange is replaced by these libraries
// (SPEC_FULL.md's domain-stack wiring for go-github/oauth2).
type OAuthHandler struct {
	oauth2Cfg *oauth2.Config
	baseURL   string
	sessions  *SessionManager
	directory Directory
	logger    *slog.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

func NewOAuthHandler(cfg OAuthConfig, sm *SessionManager, directory Directory, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		oauth2Cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
			RedirectURL:  cfg.BaseURL + "/auth/github/callback",
		},
		baseURL:   cfg.BaseURL,
		sessions:  sm,
		directory: directory,
		logger:    logger,
		states:    make(map[string]time.Time),
	}
}

func (h *OAuthHandler) generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)
	h.mu.Lock()
	h.states[state] = time.Now()
	h.mu.Unlock()
	return state
}

func (h *OAuthHandler) validateState(state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	createdAt, ok := h.states[state]
	delete(h.states, state)
	return ok && time.Since(createdAt) <= 10*time.Minute
}

// StateCleanupLoop removes expired OAuth states periodically.
func (h *OAuthHandler) StateCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			for k, t := range h.states {
				if time.Since(t) > 10*time.Minute {
					delete(h.states, k)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BeginLogin redirects to GitHub's OAuth2 authorize endpoint.
func (h *OAuthHandler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	state := h.generateState()
	http.Redirect(w, r, h.oauth2Cfg.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the authorization code, resolves the GitHub user's
// verified email to an existing Principal, and starts a session. Unknown
// emails are rejected — this flow authenticates operators already
// provisioned in the identity directory, it does not create accounts.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth denied by user", "error", errParam)
		apierr.Write(w, apierr.Invalid("authorization denied"))
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || !h.validateState(state) {
		apierr.Write(w, apierr.Invalid("missing or invalid oauth state"))
		return
	}

	token, err := h.oauth2Cfg.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange failed", "err", err)
		apierr.Write(w, apierr.Invalid("github auth failed"))
		return
	}

	client := github.NewClient(h.oauth2Cfg.Client(r.Context(), token))
	emails, _, err := client.Users.ListEmails(r.Context(), nil)
	if err != nil {
		h.logger.Error("github email fetch failed", "err", err)
		apierr.Write(w, apierr.InternalErr("github profile fetch failed"))
		return
	}

	var verifiedEmail string
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			verifiedEmail = e.GetEmail()
			break
		}
	}
	if verifiedEmail == "" {
		apierr.Write(w, apierr.ForbiddenErr("no verified primary github email"))
		return
	}

	principal, err := h.directory.GetPrincipalByEmail(r.Context(), verifiedEmail)
	if err != nil {
		apierr.Write(w, apierr.ForbiddenErr("no account for this github identity"))
		return
	}

	if err := h.sessions.Create(r.Context(), w, principal.ID, r); err != nil {
		h.logger.Error("session creation failed", "err", err)
		apierr.Write(w, apierr.InternalErr("session creation failed"))
		return
	}
	http.Redirect(w, r, h.baseURL+"/admin", http.StatusFound)
}

// Logout destroys the session.
func (h *OAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(r.Context(), w, r)
	w.WriteHeader(http.StatusNoContent)
}
