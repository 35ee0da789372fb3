package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wardloop/wardloop/internal/apierr"
	"github.com/wardloop/wardloop/internal/model"
)

func parsePrincipalID(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject %q is not a principal id", subject)
	}
	return id, nil
}

type userResult struct {
	model.Principal
	OffenseCount int  `json:"offense_count"`
	IsSuspended  bool `json:"is_suspended"`
	IsBanned     bool `json:"is_banned"`
}

type userListEnvelope struct {
	Skip    int          `json:"skip"`
	Limit   int          `json:"limit"`
	Total   int          `json:"total"`
	Results []userResult `json:"results"`
}

// ListUsers handles GET /admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var role *model.Role
	if v := q.Get("role"); v != "" {
		rr := model.Role(v)
		role = &rr
	}
	var active *bool
	if v := q.Get("active"); v != "" {
		a := v == "true"
		active = &a
	}
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	principals, total, err := h.store.ListPrincipals(r.Context(), q.Get("q"), role, active, skip, limit)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}

	results := make([]userResult, 0, len(principals))
	for _, p := range principals {
		n, _ := h.ledger.CountAll(r.Context(), p.ID)
		ban, _ := h.store.ActiveBan(r.Context(), model.SubjectPrincipal, fmt.Sprintf("%d", p.ID))
		results = append(results, userResult{
			Principal:    p,
			OffenseCount: n,
			IsSuspended:  !p.IsActive && ban == nil,
			IsBanned:     ban != nil,
		})
	}
	writeJSON(w, http.StatusOK, userListEnvelope{Skip: skip, Limit: limit, Total: total, Results: results})
}

// UserActivity handles GET /admin/users/{id}/activity.
func (h *Handler) UserActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Invalid("invalid principal id"))
		return
	}
	target := fmt.Sprintf("%d", id)

	activity, err := h.store.ListAdminActionsForTarget(r.Context(), target, 200)
	if err != nil {
		apierr.Write(w, apierr.InternalErr(err.Error()))
		return
	}
	if activity == nil {
		activity = []model.AdminAction{}
	}

	attackCount, _ := h.ledger.CountAll(r.Context(), id)
	principal, err := h.store.GetPrincipal(r.Context(), id)
	if err != nil {
		apierr.Write(w, apierr.NotFoundErr("principal not found"))
		return
	}
	ban, _ := h.store.ActiveBan(r.Context(), model.SubjectPrincipal, target)

	writeJSON(w, http.StatusOK, map[string]any{
		"activity":     activity,
		"attack_count": attackCount,
		"is_suspended": !principal.IsActive && ban == nil,
		"is_banned":    ban != nil,
	})
}
