package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/resources"
)

// AppHandlers serves app ownership endpoints
type AppHandlers struct {
	apps  *resources.Apps
	guard *permissionGuard
}

// NewAppHandlers creates the app handler group
func NewAppHandlers(apps *resources.Apps, guard *permissionGuard) *AppHandlers {
	return &AppHandlers{apps: apps, guard: guard}
}

// RegisterRoutes wires app routes onto the router
func (h *AppHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/apps/{appId}/owner", h.changeOwner).Methods("PUT")
}

func (h *AppHandlers) changeOwner(w http.ResponseWriter, r *http.Request) {
	authCtx, err := auth.FromContext(r.Context())
	if err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	appID, ok := httputil.ParsePathInt64OrError(w, r, "appId")
	if !ok {
		return
	}
	if err := h.guard.requireManage(r.Context(), authCtx, perm.ResourceApp, appID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}

	var req changeOwnerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.apps.ChangeOwner(r.Context(), appID, req.NewOwnerMemberID); err != nil {
		httputil.WriteTraceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
