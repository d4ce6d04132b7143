package httpapi

import (
	"net/http"
	"time"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/app/domain/audit"
	"github.com/openmuni/grievance-core/internal/httputil"
	"github.com/openmuni/grievance-core/pkg/apperr"
)

// listAudit serves GET /audit?entity=complaint&id=...&limit=... or
// GET /audit?action=ESCALATION&since=...&until=...&limit=.... Only
// administrators may query the ledger through this endpoint; no endpoint
// exposes audit history to citizens or staff.
func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.isAdmin() {
		writeAppError(w, actor, apperr.Forbiddenf("audit query is admin only"))
		return
	}

	_, limit := httputil.PaginationParams(r, core.DefaultListLimit, core.MaxListLimit)

	if entity := httputil.QueryString(r, "entity", ""); entity != "" {
		id := httputil.QueryInt64(r, "id", 0)
		entries, err := h.Audit.ListByEntity(r.Context(), entity, id, limit)
		if err != nil {
			writeAppError(w, actor, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	if act := httputil.QueryString(r, "action", ""); act != "" {
		since := parseTimeOrZero(httputil.QueryString(r, "since", ""))
		until := parseTimeOrZero(httputil.QueryString(r, "until", ""))
		if until.IsZero() {
			until = time.Now().UTC()
		}
		entries, err := h.Audit.ListByAction(r.Context(), audit.Action(act), since, until, limit)
		if err != nil {
			writeAppError(w, actor, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	writeAppError(w, actor, apperr.InvalidInputf("audit query requires an entity or action filter"))
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
