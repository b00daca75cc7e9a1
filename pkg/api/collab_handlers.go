package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/collab"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/perm"
)

// CollabHandlers serves collaborator assignment endpoints
type CollabHandlers struct {
	collab *collab.Service
	ledger *perm.Ledger
	guard  *permissionGuard
}

// NewCollabHandlers creates the collaborator handler group
func NewCollabHandlers(service *collab.Service, ledger *perm.Ledger, guard *permissionGuard) *CollabHandlers {
	return &CollabHandlers{collab: service, ledger: ledger, guard: guard}
}

// RegisterRoutes wires collaborator routes onto the router
func (h *CollabHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/resources/{resourceType}/{resourceId}/collaborators", h.listCollaborators).Methods("GET")
	router.HandleFunc("/resources/{resourceType}/{resourceId}/collaborators", h.updateCollaborators).Methods("PUT")
	router.HandleFunc("/resources/{resourceType}/{resourceId}/collaborators/{kind}/{principalId}", h.deleteCollaborator).Methods("DELETE")
	router.HandleFunc("/resources/{resourceType}/{resourceId}/permission", h.resolvePermission).Methods("GET")
}

func (h *CollabHandlers) listCollaborators(w http.ResponseWriter, r *http.Request) {
	authCtx, resourceType, resourceID, ok := h.parseResource(w, r)
	if !ok {
		return
	}
	if err := h.guard.requireRead(r.Context(), authCtx, resourceType, resourceID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	list, err := h.collab.ListCollaborators(r.Context(), resourceType, resourceID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type updateCollaboratorsRequest struct {
	Members    []collab.Entry `json:"members,omitempty"`
	Groups     []collab.Entry `json:"groups,omitempty"`
	Orgs       []collab.Entry `json:"orgs,omitempty"`
	Permission *perm.Bitmask  `json:"permission,omitempty"`
}

func (h *CollabHandlers) updateCollaborators(w http.ResponseWriter, r *http.Request) {
	authCtx, resourceType, resourceID, ok := h.parseResource(w, r)
	if !ok {
		return
	}
	if err := h.guard.requireManage(r.Context(), authCtx, resourceType, resourceID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	var req updateCollaboratorsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.collab.UpdateCollaborators(r.Context(), collab.UpdateRequest{
		TeamID:       authCtx.TeamID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Members:      req.Members,
		Groups:       req.Groups,
		Orgs:         req.Orgs,
		Permission:   req.Permission,
	})
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (h *CollabHandlers) deleteCollaborator(w http.ResponseWriter, r *http.Request) {
	authCtx, resourceType, resourceID, ok := h.parseResource(w, r)
	if !ok {
		return
	}
	if err := h.guard.requireManage(r.Context(), authCtx, resourceType, resourceID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	kind, err := httputil.ParsePathString(r, "kind")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	principalID, ok := httputil.ParsePathInt64OrError(w, r, "principalId")
	if !ok {
		return
	}
	principal, err := perm.NewPrincipal(perm.PrincipalKind(kind), principalID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	if err := h.collab.DeleteCollaborator(r.Context(), resourceType, resourceID, principal); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type permissionResponse struct {
	Permission perm.Bitmask `json:"permission"`
	Read       bool         `json:"read"`
	Write      bool         `json:"write"`
	Manage     bool         `json:"manage"`
}

func (h *CollabHandlers) resolvePermission(w http.ResponseWriter, r *http.Request) {
	authCtx, resourceType, resourceID, ok := h.parseResource(w, r)
	if !ok {
		return
	}

	bitmask, err := h.ledger.Resolve(r.Context(), resourceType, resourceID, authCtx.MemberID)
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteSuccess(w, permissionResponse{
		Permission: bitmask,
		Read:       bitmask.HasRead(),
		Write:      bitmask.HasWrite(),
		Manage:     bitmask.HasManage(),
	})
}

func (h *CollabHandlers) parseResource(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, perm.ResourceType, int64, bool) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return nil, "", 0, false
	}

	rawType, err := httputil.ParsePathString(r, "resourceType")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, "", 0, false
	}
	resourceType := perm.ResourceType(rawType)
	if !resourceType.Valid() {
		httputil.WriteTraceError(w, trace.BadParameter("invalid resource type %q", rawType))
		return nil, "", 0, false
	}

	resourceID, ok := httputil.ParsePathInt64OrError(w, r, "resourceId")
	if !ok {
		return nil, "", 0, false
	}
	return authCtx, resourceType, resourceID, true
}
