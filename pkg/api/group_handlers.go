package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/groups"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/perm"
)

// GroupHandlers serves member group endpoints
type GroupHandlers struct {
	groups *groups.Store
	ledger *perm.Ledger
	guard  *permissionGuard
}

// NewGroupHandlers creates the group handler group
func NewGroupHandlers(store *groups.Store, ledger *perm.Ledger, guard *permissionGuard) *GroupHandlers {
	return &GroupHandlers{groups: store, ledger: ledger, guard: guard}
}

// RegisterRoutes wires group routes onto the router
func (h *GroupHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/groups", h.createGroup).Methods("POST")
	router.HandleFunc("/groups", h.listGroups).Methods("GET")
	router.HandleFunc("/groups/{groupId}", h.deleteGroup).Methods("DELETE")
	router.HandleFunc("/groups/{groupId}/members", h.listMembers).Methods("GET")
	router.HandleFunc("/groups/{groupId}/members", h.addMember).Methods("POST")
	router.HandleFunc("/groups/{groupId}/members/{memberId}", h.removeMember).Methods("DELETE")
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (h *GroupHandlers) createGroup(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.requireTeamManage(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), authCtx.TeamID, req.Name, authCtx.MemberID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteCreated(w, group)
}

func (h *GroupHandlers) listGroups(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	list, err := h.groups.ListGroups(r.Context(), authCtx.TeamID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *GroupHandlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	authCtx, group, ok := h.loadGroupForManage(w, r)
	if !ok {
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), group.ID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	// Grants held by the deleted group are dead weight; drop them.
	if _, err := h.ledger.RevokeAllForPrincipal(r.Context(), authCtx.TeamID, perm.GroupPrincipal(group.ID)); err != nil {
		httputil.WriteTraceError(w, trace.Wrap(err))
		return
	}
	httputil.WriteNoContent(w)
}

func (h *GroupHandlers) listMembers(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupId")
	if !ok {
		return
	}
	group, err := h.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	if group.TeamID != authCtx.TeamID && !authCtx.IsRootOverride {
		httputil.WriteNotFoundError(w, "group not found")
		return
	}

	members, err := h.groups.ListMembers(r.Context(), group.ID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type groupMemberRequest struct {
	MemberID int64       `json:"memberId"`
	Role     groups.Role `json:"role,omitempty"`
}

func (h *GroupHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	_, group, ok := h.loadGroupForManage(w, r)
	if !ok {
		return
	}

	var req groupMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = groups.RoleMember
	}

	if err := h.groups.AddMember(r.Context(), group.ID, req.MemberID, req.Role); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *GroupHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	_, group, ok := h.loadGroupForManage(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "memberId")
	if !ok {
		return
	}

	if err := h.groups.RemoveMember(r.Context(), group.ID, memberID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *GroupHandlers) loadGroupForManage(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, *groups.Group, bool) {
	authCtx, ok := h.requireTeamManage(w, r)
	if !ok {
		return nil, nil, false
	}
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupId")
	if !ok {
		return nil, nil, false
	}

	group, err := h.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, nil, false
	}
	if group.TeamID != authCtx.TeamID && !authCtx.IsRootOverride {
		httputil.WriteNotFoundError(w, "group not found")
		return nil, nil, false
	}
	return authCtx, group, true
}

func (h *GroupHandlers) requireTeamManage(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, bool) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, false
	}
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceTeam, authCtx.TeamID); err != nil {
		httputil.WriteTraceError(w, err)
		return nil, false
	}
	return authCtx, true
}
