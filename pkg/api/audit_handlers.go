package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewware/teamcore/pkg/audit"
	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/perm"
)

// AuditHandlers serves the team audit trail
type AuditHandlers struct {
	recorder *audit.Recorder
	guard    *permissionGuard
}

// NewAuditHandlers creates the audit handler group
func NewAuditHandlers(recorder *audit.Recorder, guard *permissionGuard) *AuditHandlers {
	return &AuditHandlers{recorder: recorder, guard: guard}
}

// RegisterRoutes wires audit routes onto the router
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/teams/{teamId}/audit", h.listEntries).Methods("GET")
}

func (h *AuditHandlers) listEntries(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamId")
	if !ok {
		return
	}
	// The audit trail shows every member action, so reading it takes
	// manage permission on the team.
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, teamID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.recorder.ListForTeam(r.Context(), teamID, limit)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, entries)
}
