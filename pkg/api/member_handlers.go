package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/lifecycle"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/team"
)

// MemberHandlers serves membership lifecycle endpoints
type MemberHandlers struct {
	teams     *team.Store
	lifecycle *lifecycle.Lifecycle
	guard     *permissionGuard
}

// NewMemberHandlers creates the lifecycle handler group
func NewMemberHandlers(teams *team.Store, lc *lifecycle.Lifecycle, guard *permissionGuard) *MemberHandlers {
	return &MemberHandlers{teams: teams, lifecycle: lc, guard: guard}
}

// RegisterRoutes wires lifecycle routes onto the router
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/members/leave", h.leave).Methods("POST")
	router.HandleFunc("/members/{memberId}/remove", h.remove).Methods("POST")
	router.HandleFunc("/members/{memberId}/restore", h.restore).Methods("POST")
	router.HandleFunc("/members/{memberId}", h.hardDelete).Methods("DELETE")
	router.HandleFunc("/departures/{departureId}", h.getDeparture).Methods("GET")
	router.HandleFunc("/departures/{departureId}/retry", h.retryDeparture).Methods("POST")
}

func (h *MemberHandlers) leave(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	d, err := h.lifecycle.Leave(r.Context(), authCtx.MemberID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

func (h *MemberHandlers) remove(w http.ResponseWriter, r *http.Request) {
	authCtx, target, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}
	if target.ID == authCtx.MemberID {
		httputil.WriteTraceError(w, trace.BadParameter("use leave to remove yourself"))
		return
	}

	d, err := h.lifecycle.Remove(r.Context(), target.ID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

func (h *MemberHandlers) restore(w http.ResponseWriter, r *http.Request) {
	_, target, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Restore(r.Context(), target.ID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *MemberHandlers) hardDelete(w http.ResponseWriter, r *http.Request) {
	_, target, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.HardDelete(r.Context(), target.ID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *MemberHandlers) getDeparture(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	departureID, err := httputil.ParsePathString(r, "departureId")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	d, err := h.lifecycle.Departures().Get(r.Context(), departureID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	if d.MemberID != authCtx.MemberID {
		if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, d.TeamID); err != nil {
			httputil.WriteTraceError(w, err)
			return
		}
	}
	httputil.WriteSuccess(w, d)
}

func (h *MemberHandlers) retryDeparture(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	departureID, err := httputil.ParsePathString(r, "departureId")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	d, err := h.lifecycle.Departures().Get(r.Context(), departureID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, d.TeamID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	if err := h.lifecycle.Retry(r.Context(), departureID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// authorizeTarget loads the member in the path and checks the caller
// can manage that member's team.
func (h *MemberHandlers) authorizeTarget(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, *team.Member, bool) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, nil, false
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "memberId")
	if !ok {
		return nil, nil, false
	}

	target, err := h.teams.GetMember(r.Context(), memberID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, nil, false
	}
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, target.TeamID); err != nil {
		httputil.WriteTraceError(w, err)
		return nil, nil, false
	}
	return authCtx, target, true
}
