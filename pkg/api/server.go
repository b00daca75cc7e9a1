// Package api exposes the membership, organization and permission
// services over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewware/teamcore/pkg/audit"
	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/collab"
	"github.com/crewware/teamcore/pkg/directory"
	"github.com/crewware/teamcore/pkg/groups"
	"github.com/crewware/teamcore/pkg/httputil"
	"github.com/crewware/teamcore/pkg/lifecycle"
	"github.com/crewware/teamcore/pkg/middleware"
	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/orgtree"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/resources"
	"github.com/crewware/teamcore/pkg/team"
)

// Deps carries the services the API serves
type Deps struct {
	Teams       *team.Store
	TeamService *team.Service
	Orgs        *orgtree.Store
	Groups      *groups.Store
	Ledger      *perm.Ledger
	Collab      *collab.Service
	Lifecycle   *lifecycle.Lifecycle
	Apps        *resources.Apps
	Audit       *audit.Recorder
	Lookup      directory.Lookup
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	RateLimiter *middleware.RateLimiter
}

// Server is the HTTP API server
type Server struct {
	deps   Deps
	router *mux.Router
}

// NewServer creates the API server and wires all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured route tree
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	if s.deps.Logger != nil {
		s.router.Use(httputil.RecoveryMiddleware(s.deps.Logger))
		s.router.Use(httputil.LoggingMiddleware(s.deps.Logger))
	}

	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.RouteMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.NewMiddleware(false).Handler)
	if s.deps.RateLimiter != nil {
		api.Use(s.deps.RateLimiter.Handler)
	}

	guard := &permissionGuard{ledger: s.deps.Ledger, metrics: s.deps.Metrics}

	NewTeamHandlers(s.deps.Teams, s.deps.TeamService, guard).RegisterRoutes(api)
	NewMemberHandlers(s.deps.Teams, s.deps.Lifecycle, guard).RegisterRoutes(api)
	NewOrgHandlers(s.deps.Orgs, s.deps.Ledger, guard).RegisterRoutes(api)
	NewGroupHandlers(s.deps.Groups, s.deps.Ledger, guard).RegisterRoutes(api)
	NewCollabHandlers(s.deps.Collab, s.deps.Ledger, guard).RegisterRoutes(api)
	NewAppHandlers(s.deps.Apps, guard).RegisterRoutes(api)
	if s.deps.Audit != nil {
		NewAuditHandlers(s.deps.Audit, guard).RegisterRoutes(api)
	}
}
