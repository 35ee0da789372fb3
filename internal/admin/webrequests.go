package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/auth"
	"github.com/wardloop/wardloop/internal/model"
)

type webRequestEnvelope struct {
	Skip    int                `json:"skip"`
	Limit   int                `json:"limit"`
	Total   int                `json:"total"`
	Results []model.WebRequest `json:"results"`
}

// ListWebRequests handles GET /admin/web-requests, paging by skip/limit
// with no filters and no export: every request is recorded here
// regardless of classification outcome, so this is the raw request ledger.
func (h *Handler) ListWebRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	results, total, err := h.store.ListWebRequests(r.Context(), skip, limit)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	if results == nil {
		results = []model.WebRequest{}
	}
	writeJSON(w, http.StatusOK, webRequestEnvelope{Skip: skip, Limit: limit, Total: total, Results: results})
}

// ClearWebRequests handles DELETE /admin/web-requests (bulk clear, audited).
func (h *Handler) ClearWebRequests(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearWebRequests(r.Context())
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	actor := auth.FromContext(r.Context())
	h.appendAction(r.Context(), actor, model.ActionBulkClear, "web_requests", fmt.Sprintf("deleted=%d", n))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted_count": n})
}
