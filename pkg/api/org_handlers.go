package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/orgtree"
	"github.com/crewware/teamcore/pkg/perm"
)

// OrgHandlers serves organization tree endpoints
type OrgHandlers struct {
	orgs   *orgtree.Store
	ledger *perm.Ledger
	guard  *permissionGuard
}

// NewOrgHandlers creates the org handler group
func NewOrgHandlers(orgs *orgtree.Store, ledger *perm.Ledger, guard *permissionGuard) *OrgHandlers {
	return &OrgHandlers{orgs: orgs, ledger: ledger, guard: guard}
}

// RegisterRoutes wires org routes onto the router
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.createNode).Methods("POST")
	router.HandleFunc("/orgs", h.listRoots).Methods("GET")
	router.HandleFunc("/orgs/{orgId}", h.getNode).Methods("GET")
	router.HandleFunc("/orgs/{orgId}/name", h.renameNode).Methods("PUT")
	router.HandleFunc("/orgs/{orgId}", h.deleteNode).Methods("DELETE")
	router.HandleFunc("/orgs/{orgId}/children", h.listChildren).Methods("GET")
	router.HandleFunc("/orgs/{orgId}/descendants", h.listDescendants).Methods("GET")
	router.HandleFunc("/orgs/{orgId}/ancestors", h.listAncestors).Methods("GET")
	router.HandleFunc("/orgs/{orgId}/members", h.addMember).Methods("POST")
	router.HandleFunc("/orgs/{orgId}/members/{memberId}", h.removeMember).Methods("DELETE")
}

type createNodeRequest struct {
	ParentID *int64 `json:"parentId,omitempty"`
	Name     string `json:"name"`
}

func (h *OrgHandlers) createNode(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.requireTeamManage(w, r)
	if !ok {
		return
	}

	var req createNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	node, err := h.orgs.CreateNode(r.Context(), authCtx.TeamID, req.ParentID, req.Name)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteCreated(w, node)
}

func (h *OrgHandlers) listRoots(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	roots, err := h.orgs.ListRoots(r.Context(), authCtx.TeamID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, roots)
}

func (h *OrgHandlers) getNode(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, node)
}

func (h *OrgHandlers) renameNode(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTeamManage(w, r); !ok {
		return
	}
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}

	var req updateNameRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgs.UpdateNodeName(r.Context(), node.ID, req.Name); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *OrgHandlers) deleteNode(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := h.requireTeamManage(w, r)
	if !ok {
		return
	}
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}

	if err := h.orgs.DeleteNode(r.Context(), node.ID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	// The node is gone as a principal; its grants go with it.
	if _, err := h.ledger.RevokeAllForPrincipal(r.Context(), authCtx.TeamID, perm.OrgPrincipal(node.ID)); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *OrgHandlers) listChildren(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	children, err := h.orgs.ListChildren(r.Context(), node.ID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, children)
}

func (h *OrgHandlers) listDescendants(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	descendants, err := h.orgs.ListDescendants(r.Context(), node.ID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, descendants)
}

func (h *OrgHandlers) listAncestors(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	ancestors, err := h.orgs.AncestorChain(r.Context(), node.ID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, ancestors)
}

type orgMemberRequest struct {
	MemberID int64 `json:"memberId"`
}

func (h *OrgHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTeamManage(w, r); !ok {
		return
	}
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}

	var req orgMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgs.AddMember(r.Context(), node.ID, req.MemberID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *OrgHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTeamManage(w, r); !ok {
		return
	}
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "memberId")
	if !ok {
		return
	}

	if err := h.orgs.RemoveMember(r.Context(), node.ID, memberID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// loadNode fetches the node in the path and confirms it belongs to the
// caller's team.
func (h *OrgHandlers) loadNode(w http.ResponseWriter, r *http.Request) (*orgtree.Node, bool) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, false
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "orgId")
	if !ok {
		return nil, false
	}

	node, err := h.orgs.GetNode(r.Context(), orgID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, false
	}
	if node.TeamID != authCtx.TeamID && !authCtx.IsRootOverride {
		httputil.WriteNotFoundError(w, "org node not found")
		return nil, false
	}
	return node, true
}

func (h *OrgHandlers) requireTeamManage(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, bool) {
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
