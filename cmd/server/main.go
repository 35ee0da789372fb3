package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wardloop/wardloop/internal/admin"
	"github.com/wardloop/wardloop/internal/auth"
	"github.com/wardloop/wardloop/internal/classify"
	"github.com/wardloop/wardloop/internal/config"
	"github.com/wardloop/wardloop/internal/forwarder"
	"github.com/wardloop/wardloop/internal/identity"
	"github.com/wardloop/wardloop/internal/ledger"
	"github.com/wardloop/wardloop/internal/logging"
	"github.com/wardloop/wardloop/internal/middleware"
	"github.com/wardloop/wardloop/internal/penalty"
	"github.com/wardloop/wardloop/internal/ratelimit"
	"github.com/wardloop/wardloop/internal/runloop"
	"github.com/wardloop/wardloop/internal/sse"
	"github.com/wardloop/wardloop/internal/store"
)

// directoryAdapter satisfies identity.PrincipalLookup over the store's
// email/display-name columns, the closest analogue this schema has to a
// separate identity directory (spec §1's external collaborator).
type directoryAdapter struct {
	store *store.Store
}

func (d directoryAdapter) LookupByEmail(ctx context.Context, email string) (int64, bool, error) {
	p, err := d.store.GetPrincipalByEmail(ctx, email)
	if err != nil {
		if err == store.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return p.ID, true, nil
}

func (d directoryAdapter) LookupByUsername(ctx context.Context, username string) (int64, bool, error) {
	p, err := d.store.GetPrincipalByUsername(ctx, username)
	if err != nil {
		if err == store.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return p.ID, true, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.Setup(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Session management and GitHub OAuth2 login for admin operators.
	sm := auth.NewSessionManager(st, logger, cfg.Production())

	var tokenEnc *auth.TokenEncryptor
	if cfg.TokenEncryptionKey != "" {
		enc, err := auth.NewTokenEncryptor(cfg.TokenEncryptionKey)
		if err != nil {
			logger.Warn("token encryption not configured", "err", err)
		} else {
			tokenEnc = enc
		}
	}

	oauthCfg := auth.OAuthConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		BaseURL:      cfg.BaseURL,
	}
	oauth := auth.NewOAuthHandler(oauthCfg, sm, st, logger)

	// SSE fan-out for the admin live alert stream, driven by Postgres NOTIFY.
	sseHub := sse.NewHub(logger)
	pgListener := sse.NewPGListener(st.Pool, sseHub, logger)

	// Rate limiting: in-memory by default, Redis-backed when REDIS_URL is set
	// so multiple process instances share one view (spec §9's explicit seam).
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts))
	} else {
		limiter = ratelimit.NewInMemory()
	}

	classifier := classify.New(cfg.WhitelistAddrs, cfg.Testing)
	resolver := identity.New(directoryAdapter{store: st}, auth.SessionPrincipalFunc(sm))
	lg := ledger.New(st, cfg.LedgerCacheTTL, cfg.RateLimitLRUEntries)

	// tokenEnc is only passed through as a non-nil interface value when
	// actually configured — a nil *TokenEncryptor boxed into
	// forwarder.SecretDecryptor would compare non-nil and panic on use.
	var secretDecryptor forwarder.SecretDecryptor
	if tokenEnc != nil {
		secretDecryptor = tokenEnc
	}
	fwd := forwarder.New(st, logger, cfg.ForwarderQueueCap, cfg.ForwarderTimeout, func() {
		// Queue overflow is logged as a warning only; no
		// FORWARDER_OVERFLOW alert row is written.
		logger.Warn("forwarder queue overflow")
	}, secretDecryptor)

	penalties := penalty.New(st, lg, fwd, penalty.Config{
		SuspendThreshold:   cfg.SuspendThreshold,
		BanThreshold:       cfg.BanThreshold,
		AddrBurstThreshold: cfg.AddrBurstThreshold,
		AddrBurstWindow:    cfg.AddrBurstWindow,
		AddrBanDuration:    cfg.AddrBanDuration,
	}, logger)

	enforcement := middleware.New(st, st, limiter, classifier, resolver, st, penalties, fwd, st, middleware.Config{
		RateLimitN:      cfg.RateLimitN,
		RateLimitWindow: time.Duration(cfg.RateLimitWindowSec) * time.Second,
		DedupeWindow:    time.Duration(cfg.DedupeWindowSec) * time.Second,
	}, logger)

	var secretEncryptor admin.Encryptor
	if tokenEnc != nil {
		secretEncryptor = tokenEnc
	}
	adminHandler := admin.NewHandler(st, lg, fwd, sseHub, secretEncryptor, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("pong")) })
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/auth/github", oauth.BeginLogin)
	r.Get("/auth/github/callback", oauth.Callback)
	r.Post("/auth/logout", oauth.Logout)

	admin.Routes(r, adminHandler, sm)

	// Every other route runs behind the Enforcement Middleware gate (spec
	// §4.5): this is the protected-service surface the pipeline defends.
	r.NotFound(enforcement.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})).ServeHTTP)

	for i := 0; i < cfg.ForwarderWorkers; i++ {
		go runloop.RunWithRecovery(ctx, logger, "forwarder-worker", fwd.Run)
	}
	go runloop.RunWithRecovery(ctx, logger, "ban-expiry-sweep", func(ctx context.Context) {
		st.BanExpirySweepLoop(ctx, logger)
	})
	go runloop.RunWithRecovery(ctx, logger, "partition-maintenance", st.PartitionMaintenanceLoop)
	go runloop.RunWithRecovery(ctx, logger, "session-cleanup", sm.CleanupLoop)
	go runloop.RunWithRecovery(ctx, logger, "pg-listener", pgListener.Listen)
	go oauth.StateCleanupLoop(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streaming needs unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
