// Package admin implements the Admin Query API of spec §4.10/§6: filtered
// alert listing/export/stream, ban management, principal listing with
// derived offense counts, and forwarder CRUD.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wardloop/wardloop/internal/auth"
	"github.com/wardloop/wardloop/internal/forwarder"
	"github.com/wardloop/wardloop/internal/ledger"
	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/sse"
)

// Store is the subset of internal/store the admin API reads and writes.
type Store interface {
	QueryAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error)
	GetAlert(ctx context.Context, id int64) (*model.Alert, error)
	UpdateAlertStatus(ctx context.Context, id int64, newStatus model.Status) (*model.Alert, error)
	DeleteAlerts(ctx context.Context, f model.AlertFilter) (int64, error)

	ActiveBan(ctx context.Context, kind model.SubjectKind, subject string) (*model.Ban, error)
	CreateBan(ctx context.Context, kind model.SubjectKind, subject, reason string, expiresAt *time.Time) (*model.Ban, error)
	Unban(ctx context.Context, kind model.SubjectKind, subject string) error

	ListPrincipals(ctx context.Context, q string, role *model.Role, active *bool, skip, limit int) ([]model.Principal, int, error)
	GetPrincipal(ctx context.Context, id int64) (*model.Principal, error)
	SetPrincipalActive(ctx context.Context, id int64, active bool) error

	ListAdminActionsForTarget(ctx context.Context, target string, limit int) ([]model.AdminAction, error)
	AppendAdminAction(ctx context.Context, actorPrincipalID *int64, kind model.AdminActionKind, target, note string) (*model.AdminAction, error)

	CreateForwarder(ctx context.Context, fc model.ForwarderConfig) (*model.ForwarderConfig, error)
	UpdateForwarder(ctx context.Context, fc model.ForwarderConfig) error
	DeleteForwarder(ctx context.Context, id string) error
	GetForwarder(ctx context.Context, id string) (*model.ForwarderConfig, error)
	ListForwarders(ctx context.Context) ([]model.ForwarderConfig, error)

	ListWebRequests(ctx context.Context, skip, limit int) ([]model.WebRequest, int, error)
	ClearWebRequests(ctx context.Context) (int64, error)
}

// Encryptor encrypts a webhook secret for storage at rest.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
}

// Handler holds every dependency the admin HTTP surface needs.
type Handler struct {
	store     Store
	ledger    *ledger.Ledger
	forwarder *forwarder.Forwarder
	hub       *sse.Hub
	encryptor Encryptor
	logger    *slog.Logger
	cursors   *cursorStore
}

func NewHandler(s Store, lg *ledger.Ledger, fwd *forwarder.Forwarder, hub *sse.Hub, encryptor Encryptor, logger *slog.Logger) *Handler {
	return &Handler{store: s, ledger: lg, forwarder: fwd, hub: hub, encryptor: encryptor, logger: logger, cursors: newCursorStore()}
}

// Routes mounts the admin API under r, gated by RequireAdmin.
func Routes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin(sm))

		r.Get("/alerts", h.ListAlerts)
		r.Get("/alerts/stream", h.StreamAlerts)
		r.Get("/alerts/export", h.ExportAlerts)
		r.Get("/alerts/{id}", h.GetAlert)
		r.Patch("/alerts/{id}/status", h.UpdateAlertStatus)
		r.Delete("/alerts", h.DeleteAlerts)

		r.Post("/ban", h.Ban)
		r.Post("/unban", h.Unban)

		r.Get("/users", h.ListUsers)
		r.Get("/users/{id}/activity", h.UserActivity)

		r.Get("/web-requests", h.ListWebRequests)
		r.Delete("/web-requests", h.ClearWebRequests)

		r.Get("/forwarders", h.ListForwarders)
		r.Post("/forwarders", h.CreateForwarder)
		r.Patch("/forwarders/{id}", h.UpdateForwarder)
		r.Delete("/forwarders/{id}", h.DeleteForwarder)
		r.Post("/forwarders/{id}/test", h.TestForwarder)
	})
}
