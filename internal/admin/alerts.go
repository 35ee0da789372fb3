package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/auth"
	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/sse"
	"github.com/wardloop/wardloop/internal/store"
)

type listEnvelope struct {
	Skip    int           `json:"skip"`
	Limit   int           `json:"limit"`
	Total   int           `json:"total"`
	Results []model.Alert `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseAlertFilter(r *http.Request) model.AlertFilter {
	q := r.URL.Query()
	var f model.AlertFilter

	if v := q.Get("severity"); v != "" {
		s := model.Severity(v)
		f.Severity = &s
	}
	if v := q.Get("kind"); v != "" {
		k := model.Kind(v)
		f.Kind = &k
	}
	if v := q.Get("status"); v != "" {
		s := model.Status(v)
		f.Status = &s
	}
	if v := q.Get("principal_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.PrincipalID = &id
		}
	}
	if v := q.Get("remote_address"); v != "" {
		f.RemoteAddress = &v
	}
	if v := q.Get("after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.After = &t
		}
	}
	if v := q.Get("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Before = &t
		}
	}
	f.Skip, _ = strconv.Atoi(q.Get("skip"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f
}

// ListAlerts handles GET /admin/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f := parseAlertFilter(r)
	results, total, err := h.store.QueryAlerts(r.Context(), f)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	if results == nil {
		results = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, listEnvelope{Skip: f.Skip, Limit: f.Limit, Total: total, Results: results})
}

// GetAlert handles GET /admin/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Invalid("invalid alert id"))
		return
	}
	a, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			apierr.Write(w, apierr.NotFoundErr("alert not found"))
			return
		}
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateAlertStatus handles PATCH /admin/alerts/{id}/status.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Invalid("invalid alert id"))
		return
	}
	var body struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, apierr.Invalid("invalid request body"))
		return
	}
	a, err := h.store.UpdateAlertStatus(r.Context(), id, body.Status)
	if err != nil {
		if err == store.ErrNotFound {
			apierr.Write(w, apierr.NotFoundErr("alert not found"))
			return
		}
		apierr.Write(w, apierr.New(http.StatusConflict, apierr.Conflict, err.Error()))
		return
	}
	actor := auth.FromContext(r.Context())
	h.appendAction(r.Context(), actor, model.ActionStatusEdit, fmt.Sprintf("%d", id), string(body.Status))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "alert": a})
}

// DeleteAlerts handles DELETE /admin/alerts (bulk clear, audited).
func (h *Handler) DeleteAlerts(w http.ResponseWriter, r *http.Request) {
	f := parseAlertFilter(r)
	n, err := h.store.DeleteAlerts(r.Context(), f)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	actor := auth.FromContext(r.Context())
	h.appendAction(r.Context(), actor, model.ActionBulkClear, "alerts", fmt.Sprintf("deleted=%d", n))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted_count": n})
}

// exportPageSize is the hard per-page cap for alert export (spec §4.2).
// Filtered result sets beyond this are paginated with an opaque cursor
// returned via X-Next-Cursor rather than served in one response.
const exportPageSize = 100000

// payloadExcerptLimit truncates the CSV payload_excerpt column (spec §4.2).
const payloadExcerptLimit = 256

// ExportAlerts handles GET /admin/alerts/export?format=json|csv. An
// optional ?cursor= token (opaque, single-use, spec §4.2) resumes a
// filtered export past the page cap; the response carries X-Next-Cursor
// when more rows remain.
func (h *Handler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	f := parseAlertFilter(r)
	if f.Limit <= 0 || f.Limit > exportPageSize {
		f.Limit = exportPageSize
	}

	if token := r.URL.Query().Get("cursor"); token != "" {
		lastID, ok := h.cursors.resolve(token)
		if !ok {
			apierr.Write(w, apierr.Invalid("invalid or expired export cursor"))
			return
		}
		f.CursorID = &lastID
	}

	results, _, err := h.store.QueryAlerts(r.Context(), f)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}

	if len(results) == f.Limit {
		next := h.cursors.issue(results[len(results)-1].ID)
		w.Header().Set("X-Next-Cursor", next)
	}

	format := r.URL.Query().Get("format")
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\"alerts.csv\"")
		cw := csv.NewWriter(w)
		cw.Write([]string{"id", "created_at", "principal_id", "remote_address", "route", "method", "kind", "severity", "risk_score", "status", "signature", "payload_excerpt"})
		for _, a := range results {
			principalID := ""
			if a.PrincipalID != nil {
				principalID = strconv.FormatInt(*a.PrincipalID, 10)
			}
			cw.Write([]string{
				strconv.FormatInt(a.ID, 10), a.CreatedAt.Format(time.RFC3339), principalID, a.RemoteAddress,
				a.Route, a.Method, string(a.Kind), string(a.Severity), strconv.Itoa(a.RiskScore), string(a.Status),
				a.Signature, truncate(a.Payload, payloadExcerptLimit),
			})
		}
		cw.Flush()
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"alerts.json\"")
	json.NewEncoder(w).Encode(results)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// StreamAlerts handles GET /admin/alerts/stream, hydrating with the 50 most
// recent alerts before switching to live Postgres NOTIFY-driven events
// (spec §6). It reads no after-id parameter: every connection, including a
// reconnect, starts from the same 50 most recent alerts.
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierr.Write(w, apierr.InternalErr("streaming not supported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	recent, _, _ := h.store.QueryAlerts(r.Context(), model.AlertFilter{Limit: 50})
	for _, a := range recent {
		data, _ := json.Marshal(a)
		fmt.Fprintf(w, "event: alert\ndata: %s\n\n", data)
	}
	flusher.Flush()

	ch, cancel := h.hub.Subscribe(sse.AlertChannel)
	defer cancel()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) appendAction(ctx context.Context, actor *model.Principal, kind model.AdminActionKind, target, note string) {
	var actorID *int64
	if actor != nil {
		actorID = &actor.ID
	}
	if _, err := h.store.AppendAdminAction(ctx, actorID, kind, target, note); err != nil {
		h.logger.Error("admin: append admin action failed", "err", err)
	}
}
