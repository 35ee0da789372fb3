package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/auth"
	"github.com/wardloop/wardloop/internal/metrics"
	"github.com/wardloop/wardloop/internal/model"
)

type banRequest struct {
	SubjectKind model.SubjectKind `json:"subject_kind"`
	Subject     string            `json:"subject"`
	Reason      string            `json:"reason"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// Ban handles POST /admin/ban.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid request body"))
		return
	}
	if req.Subject == "" || (req.SubjectKind != model.SubjectPrincipal && req.SubjectKind != model.SubjectAddress) {
		apierr.Write(w, apierr.Invalid("subject_kind and subject are required"))
		return
	}

	if existing, err := h.store.ActiveBan(r.Context(), req.SubjectKind, req.Subject); err == nil && existing != nil {
		apierr.Write(w, apierr.New(http.StatusConflict, apierr.Conflict, "subject already banned"))
		return
	}

	ban, err := h.store.CreateBan(r.Context(), req.SubjectKind, req.Subject, req.Reason, req.ExpiresAt)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	metrics.BansByLevel.WithLabelValues(string(req.SubjectKind)).Inc()
	if req.SubjectKind == model.SubjectPrincipal {
		// Best-effort: ban implies deactivation for a principal subject.
		// Errors are logged, not surfaced — the ban itself has already
		// been recorded and is authoritative.
		if err := h.deactivatePrincipal(r, req.Subject); err != nil {
			h.logger.Warn("admin: deactivate banned principal failed", "err", err)
		}
	}

	actor := auth.FromContext(r.Context())
	h.appendAction(r.Context(), actor, model.ActionManualBan, req.Subject, req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ban": ban})
}

// Unban handles POST /admin/unban.
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectKind model.SubjectKind `json:"subject_kind"`
		Subject     string            `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid request body"))
		return
	}
	if err := h.store.Unban(r.Context(), req.SubjectKind, req.Subject); err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	actor := auth.FromContext(r.Context())
	h.appendAction(r.Context(), actor, model.ActionManualUnban, req.Subject, "")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) deactivatePrincipal(r *http.Request, subject string) error {
	id, err := parsePrincipalID(subject)
	if err != nil {
		return err
	}
	return h.store.SetPrincipalActive(r.Context(), id, false)
}
