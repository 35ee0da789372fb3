package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/store"
)

// encryptSecret encrypts a webhook secret for storage at rest, falling back
// to plaintext if no encryptor is configured (e.g. local development).
func (h *Handler) encryptSecret(plaintext string) string {
	if h.encryptor == nil || plaintext == "" {
		return plaintext
	}
	enc, err := h.encryptor.Encrypt(plaintext)
	if err != nil {
		h.logger.Warn("admin: secret encryption failed, storing plaintext", "err", err)
		return plaintext
	}
	return enc
}

// ListForwarders handles GET /admin/forwarders.
func (h *Handler) ListForwarders(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListForwarders(r.Context())
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	if configs == nil {
		configs = []model.ForwarderConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

type forwarderRequest struct {
	Endpoint    string       `json:"endpoint"`
	Secret      string       `json:"secret"`
	EventKinds  []model.Kind `json:"event_kinds"`
	MinSeverity model.Severity `json:"min_severity"`
	Enabled     bool         `json:"enabled"`
	Retries     int          `json:"retries"`
	TimeoutSec  int          `json:"timeout_sec"`
}

// CreateForwarder handles POST /admin/forwarders.
func (h *Handler) CreateForwarder(w http.ResponseWriter, r *http.Request) {
	var req forwarderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid request body"))
		return
	}
	if req.Endpoint == "" {
		apierr.Write(w, apierr.Invalid("endpoint is required"))
		return
	}
	secret := h.encryptSecret(req.Secret)
	fc := model.ForwarderConfig{
		ID: uuid.NewString(), Endpoint: req.Endpoint, Secret: secret, EventKinds: req.EventKinds,
		MinSeverity: req.MinSeverity, Enabled: req.Enabled, Retries: req.Retries, TimeoutSec: req.TimeoutSec,
	}
	created, err := h.store.CreateForwarder(r.Context(), fc)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateForwarder handles PATCH /admin/forwarders/{id}.
func (h *Handler) UpdateForwarder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetForwarder(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			apierr.Write(w, apierr.NotFoundErr("forwarder not found"))
			return
		}
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}

	var req forwarderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid request body"))
		return
	}
	existing.Endpoint = req.Endpoint
	if req.Secret != "" {
		existing.Secret = h.encryptSecret(req.Secret)
	}
	existing.EventKinds = req.EventKinds
	existing.MinSeverity = req.MinSeverity
	existing.Enabled = req.Enabled
	existing.Retries = req.Retries
	existing.TimeoutSec = req.TimeoutSec

	if err := h.store.UpdateForwarder(r.Context(), *existing); err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// DeleteForwarder handles DELETE /admin/forwarders/{id}.
func (h *Handler) DeleteForwarder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteForwarder(r.Context(), id); err != nil {
		if err == store.ErrNotFound {
			apierr.Write(w, apierr.NotFoundErr("forwarder not found"))
			return
		}
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// TestForwarder handles POST /admin/forwarders/{id}/test: a single-attempt,
// no-retry synthetic ping that bypasses EventKinds/MinSeverity filters
// (SPEC_FULL.md's forwarder self-test supplement).
func (h *Handler) TestForwarder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fc, err := h.store.GetForwarder(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			apierr.Write(w, apierr.NotFoundErr("forwarder not found"))
			return
		}
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.forwarder.TestPing(ctx, *fc); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
