// Package identity resolves a request to a principal id so pre-auth attacks
// attribute to the targeted account, not only the attacking address
// (spec §4.6).
package identity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// PrincipalLookup resolves a normalized email or username to a principal id.
// Implemented by the identity directory (external collaborator); the
// resolver only consumes it.
type PrincipalLookup interface {
	LookupByEmail(ctx context.Context, email string) (principalID int64, ok bool, err error)
	LookupByUsername(ctx context.Context, username string) (principalID int64, ok bool, err error)
}

// SessionPrincipal extracts the authenticated principal id from a request's
// session, if any.
type SessionPrincipal func(r *http.Request) (principalID int64, ok bool)

const stickyWindow = 30 * time.Second

type stickyEntry struct {
	principalID int64
	at          time.Time
}

// Resolver is a pure (request) -> principal_id? function with one piece of
// state: a short sticky cache keyed by remote address, so repeated
// injection attempts against the same victim account from an address that
// momentarily omits the credential field still attribute correctly.
type Resolver struct {
	lookup  PrincipalLookup
	session SessionPrincipal

	mu     sync.Mutex
	sticky map[string]stickyEntry
}

func New(lookup PrincipalLookup, session SessionPrincipal) *Resolver {
	return &Resolver{
		lookup:  lookup,
		session: session,
		sticky:  make(map[string]stickyEntry),
	}
}

// Resolve implements the source order from spec §4.6: authenticated
// session, email form field, username form field, sticky last-value for the
// same remote address within the last 30s. It never raises; ambiguity or a
// lookup error yields (0, false).
func (res *Resolver) Resolve(ctx context.Context, r *http.Request, remoteAddr string) (int64, bool) {
	if res.session != nil {
		if id, ok := res.session(r); ok {
			res.remember(remoteAddr, id)
			return id, true
		}
	}

	if email := formValue(r, "email"); email != "" {
		if id, ok, err := res.lookup.LookupByEmail(ctx, NormalizeEmail(email)); err == nil && ok {
			res.remember(remoteAddr, id)
			return id, true
		}
	}

	if username := formValue(r, "username"); username != "" {
		if id, ok, err := res.lookup.LookupByUsername(ctx, strings.TrimSpace(username)); err == nil && ok {
			res.remember(remoteAddr, id)
			return id, true
		}
	}

	if id, ok := res.recent(remoteAddr); ok {
		return id, true
	}

	return 0, false
}

// NormalizeEmail trims, lowercases, and NFKC-normalizes an email for
// case-insensitive identity-directory lookups (spec §4.6).
func NormalizeEmail(email string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(email)))
}

func formValue(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	if v := r.FormValue(key); v != "" {
		return v
	}
	return ""
}

func (res *Resolver) remember(remoteAddr string, principalID int64) {
	if remoteAddr == "" {
		return
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	res.sticky[remoteAddr] = stickyEntry{principalID: principalID, at: time.Now()}
}

func (res *Resolver) recent(remoteAddr string) (int64, bool) {
	res.mu.Lock()
	defer res.mu.Unlock()
	e, ok := res.sticky[remoteAddr]
	if !ok || time.Since(e.at) > stickyWindow {
		return 0, false
	}
	return e.principalID, true
}
