package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/team"
)

// TeamHandlers serves team and ownership endpoints
type TeamHandlers struct {
	teams   *team.Store
	service *team.Service
	guard   *permissionGuard
}

// NewTeamHandlers creates the team handler group
func NewTeamHandlers(teams *team.Store, service *team.Service, guard *permissionGuard) *TeamHandlers {
	return &TeamHandlers{teams: teams, service: service, guard: guard}
}

// RegisterRoutes wires team routes onto the router
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/teams/{teamId}", h.getTeam).Methods("GET")
	router.HandleFunc("/teams/{teamId}/members", h.listMembers).Methods("GET")
	router.HandleFunc("/teams/{teamId}/owner", h.changeOwner).Methods("PUT")
	router.HandleFunc("/members/{memberId}/name", h.updateMemberName).Methods("PUT")
}

func (h *TeamHandlers) getTeam(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamId")
	if !ok {
		return
	}
	if err := h.guard.requireRead(r.Context(), authCtx, perm.ResourceTeam, teamID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	t, err := h.teams.GetTeam(r.Context(), teamID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

func (h *TeamHandlers) listMembers(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamId")
	if !ok {
		return
	}
	if err := h.guard.requireRead(r.Context(), authCtx, perm.ResourceTeam, teamID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	status := team.Status(r.URL.Query().Get("status"))
	members, err := h.teams.ListMembers(r.Context(), teamID, status)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type changeOwnerRequest struct {
	NewOwnerMemberID int64 `json:"newOwnerMemberId"`
}

func (h *TeamHandlers) changeOwner(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "teamId")
	if !ok {
		return
	}
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, teamID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	var req changeOwnerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.ChangeOwner(r.Context(), teamID, req.NewOwnerMemberID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type updateNameRequest struct {
	Name string `json:"name"`
}

func (h *TeamHandlers) updateMemberName(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "memberId")
	if !ok {
		return
	}

	// Members rename themselves; managers rename anyone on the team.
	if authCtx.MemberID != memberID {
		if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, authCtx.TeamID); err != nil {
			httputil.WriteTraceError(w, err)
			return
		}
	}

	var req updateNameRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.teams.UpdateMemberName(r.Context(), memberID, req.Name); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
