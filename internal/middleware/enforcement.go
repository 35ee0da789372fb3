// Package middleware implements the Enforcement Middleware gate described
// in spec §4.5: pre-check, rate limit, pass-through, post-classify.
package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/classify"
	"github.com/wardloop/wardloop/internal/identity"
	"github.com/wardloop/wardloop/internal/metrics"
	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/penalty"
	"github.com/wardloop/wardloop/internal/ratelimit"
)

// BanSource is the subset of the store the pre-check needs.
type BanSource interface {
	ActiveBan(ctx context.Context, kind model.SubjectKind, subject string) (*model.Ban, error)
}

// PrincipalSource resolves a principal's current suspend/active state.
type PrincipalSource interface {
	GetPrincipal(ctx context.Context, id int64) (*model.Principal, error)
}

// AlertStore persists classified findings.
type AlertStore interface {
	CreateAlert(ctx context.Context, principalID *int64, remoteAddress string, route, method string, f model.Finding, userAgent string, metadata map[string]string, dedupeWindow time.Duration) (*model.Alert, bool, error)
}

// ForwarderSink enqueues a newly created alert for webhook delivery.
type ForwarderSink interface {
	Enqueue(ctx context.Context, alert model.Alert)
}

// WebRequestSink records one row of the operator-introspection request
// ledger per request, independent of classification outcome (spec §4/§6).
type WebRequestSink interface {
	InsertWebRequest(ctx context.Context, wr model.WebRequest) error
}

// Config bundles the Enforcement Middleware's tunables (spec §6 env vars).
type Config struct {
	RateLimitN      int
	RateLimitWindow time.Duration
	DedupeWindow    time.Duration
}

// Enforcement wires the Classifier, Identity Resolver, Rate Limiter, Alert
// Store, Penalty Engine, and Forwarder into one HTTP middleware, matching
// spec §4.5's five-step sequence.
type Enforcement struct {
	bans       BanSource
	principals PrincipalSource
	limiter    ratelimit.Limiter
	classifier *classify.Classifier
	resolver   *identity.Resolver
	alerts     AlertStore
	penalties  *penalty.Engine
	forwarder  ForwarderSink
	webReqs    WebRequestSink
	cfg        Config
	logger     *slog.Logger
}

func New(
	bans BanSource,
	principals PrincipalSource,
	limiter ratelimit.Limiter,
	classifier *classify.Classifier,
	resolver *identity.Resolver,
	alerts AlertStore,
	penalties *penalty.Engine,
	forwarder ForwarderSink,
	webReqs WebRequestSink,
	cfg Config,
	logger *slog.Logger,
) *Enforcement {
	return &Enforcement{
		bans: bans, principals: principals, limiter: limiter, classifier: classifier,
		resolver: resolver, alerts: alerts, penalties: penalties, forwarder: forwarder,
		webReqs: webReqs, cfg: cfg, logger: logger,
	}
}

// Wrap returns a chi-compatible middleware implementing the full gate.
func (e *Enforcement) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		remoteAddr := RemoteAddress(r)
		ctx := r.Context()

		// Body is read and buffered exactly once, up front, before
		// anything downstream gets a chance to drain it. In particular
		// the Identity Resolver's form lookup calls r.FormValue, which
		// for an application/x-www-form-urlencoded POST calls
		// ParseForm and consumes r.Body — so both the resolver and the
		// protected handler must see a freshly reset copy, and the
		// Classifier reads the buffered string directly rather than
		// r.Body a third time.
		body, _ := io.ReadAll(io.LimitReader(r.Body, 256<<10))
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		principalID, hasPrincipal := e.resolver.Resolve(ctx, r, remoteAddr)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		// Step 1: pre-check. Fail open on store read errors — an
		// unavailable ban/suspend lookup must not itself deny traffic
		// (spec §4.5's fail-open rule).
		if reason, code, denied := e.precheck(ctx, remoteAddr, principalID, hasPrincipal); denied {
			apierr.Write(w, apierr.New(http.StatusForbidden, code, reason))
			return
		}

		// Step 2: rate limit.
		routeBucket := routeBucket(r)
		key := ratelimit.Key(remoteAddr, routeBucket)
		if allowed, retryAfter := e.limiter.Allow(key, e.cfg.RateLimitN, e.cfg.RateLimitWindow); !allowed {
			metrics.RateLimitRejections.Inc()
			w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(retryAfter))
			e.recordAndPenalize(ctx, remoteAddr, principalID, hasPrincipal, routeBucket, r.Method, model.Finding{
				Kind:      model.KindRateLimitExceeded,
				Severity:  model.SeverityMedium,
				Signature: model.ComputeSignature(model.KindRateLimitExceeded, key),
				Fragment:  key,
				ScoreBase: model.KindRateLimitExceeded.ScoreBase(),
			}, r.UserAgent(), nil)
			apierr.Write(w, apierr.New(http.StatusTooManyRequests, apierr.RateLimited, "rate limit exceeded"))
			return
		}

		// Step 3: pass through to the protected handler.
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		e.recordWebRequest(ctx, remoteAddr, routeBucket, r.Method, rec.StatusCode(), time.Since(start))

		// Step 4: post-classify. Runs synchronously after the handler has
		// written its response, so findings and penalties exist before
		// Wrap returns; there is no CRITICAL short-circuit before the
		// handler.
		findings := e.classifier.Classify(classify.Request{
			Method:        r.Method,
			Route:         routeBucket,
			Query:         r.URL.RawQuery,
			Body:          string(body),
			UserAgent:     r.UserAgent(),
			Referer:       r.Referer(),
			RemoteAddress: remoteAddr,
		})
		for _, f := range findings {
			e.recordAndPenalize(ctx, remoteAddr, principalID, hasPrincipal, routeBucket, r.Method, f, r.UserAgent(), nil)
		}
	})
}

// recordWebRequest appends one row to the request ledger for every request
// regardless of classification outcome (spec §4/§6). A sink is optional;
// failures are logged, never surfaced to the caller.
func (e *Enforcement) recordWebRequest(ctx context.Context, remoteAddr, route, method string, status int, latency time.Duration) {
	if e.webReqs == nil {
		return
	}
	wr := model.WebRequest{
		Method:     method,
		Route:      route,
		Status:     status,
		LatencyMs:  float64(latency.Microseconds()) / 1000.0,
		RemoteAddr: remoteAddr,
	}
	if err := e.webReqs.InsertWebRequest(ctx, wr); err != nil {
		e.logger.Error("enforcement: insert web request failed", "err", err)
	}
}

// precheck implements spec §4.5 step 1's BANNED_PRINCIPAL >
// BANNED_ADDRESS > SUSPENDED precedence.
func (e *Enforcement) precheck(ctx context.Context, remoteAddr string, principalID int64, hasPrincipal bool) (string, apierr.Code, bool) {
	if hasPrincipal {
		if ban, err := e.bans.ActiveBan(ctx, model.SubjectPrincipal, fmt.Sprintf("%d", principalID)); err == nil && ban != nil {
			return "principal is banned", apierr.BannedPrincipal, true
		}
	}
	if ban, err := e.bans.ActiveBan(ctx, model.SubjectAddress, remoteAddr); err == nil && ban != nil {
		return "address is banned", apierr.BannedAddress, true
	}
	if hasPrincipal {
		if p, err := e.principals.GetPrincipal(ctx, principalID); err == nil && p != nil && !p.IsActive {
			return "principal is suspended", apierr.Suspended, true
		}
	}
	return "", "", false
}

func (e *Enforcement) recordAndPenalize(ctx context.Context, remoteAddr string, principalID int64, hasPrincipal bool, route, method string, f model.Finding, userAgent string, metadata map[string]string) {
	var pid *int64
	if hasPrincipal {
		id := principalID
		pid = &id
	}
	alert, created, err := e.alerts.CreateAlert(ctx, pid, remoteAddr, route, method, f, userAgent, metadata, e.cfg.DedupeWindow)
	if err != nil {
		e.logger.Error("enforcement: create alert failed", "err", err)
		return
	}
	if !created {
		return
	}
	metrics.AlertsByKind.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
	if e.penalties != nil {
		if err := e.penalties.Apply(ctx, pid, remoteAddr, f.Severity); err != nil {
			e.logger.Error("enforcement: penalty apply failed", "err", err)
		}
	}
	if e.forwarder != nil {
		e.forwarder.Enqueue(ctx, *alert)
	}
}

// routeBucket returns the route template (not the concrete path), per spec
// §4.7's route_bucket definition.
func routeBucket(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// RemoteAddress extracts the caller's address, preferring a trusted
// X-Real-IP header set by the front proxy over RemoteAddr's host:port form.
func RemoteAddress(r *http.Request) string {
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) StatusCode() int {
	return s.status
}
