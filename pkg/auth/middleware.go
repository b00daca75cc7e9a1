package auth

import (
	"net/http"
	"strconv"

	"github.com/crewware/teamcore/pkg/contextkeys"
	"github.com/crewware/teamcore/pkg/httputil"
)

// Trusted headers set by the edge gateway after session validation.
// This service never sees raw credentials.
const (
	HeaderMemberID     = "X-Member-Id"
	HeaderTeamID       = "X-Team-Id"
	HeaderRootOverride = "X-Root-Override"
)

// Middleware lifts gateway identity headers into the request context
type Middleware struct {
	optional bool
}

// NewMiddleware creates the auth middleware. When optional is true,
// unauthenticated requests pass through without an auth context.
func NewMiddleware(optional bool) *Middleware {
	return &Middleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberHeader := r.Header.Get(HeaderMemberID)
		teamHeader := r.Header.Get(HeaderTeamID)
		if memberHeader == "" || teamHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing identity headers")
			return
		}

		memberID, err := strconv.ParseInt(memberHeader, 10, 64)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid member identity")
			return
		}
		teamID, err := strconv.ParseInt(teamHeader, 10, 64)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid team identity")
			return
		}

		authCtx := &AuthContext{
			MemberID:       memberID,
			TeamID:         teamID,
			IsRootOverride: r.Header.Get(HeaderRootOverride) == "true",
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
