// Package auth carries the caller identity established by the edge
// gateway into request handling.
package auth

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/contextkeys"
)

// AuthContext identifies the calling member. IsRootOverride marks
// platform operators whose requests skip permission checks.
type AuthContext struct {
	MemberID       int64
	TeamID         int64
	IsRootOverride bool
}

// FromContext extracts the auth context set by the middleware
func FromContext(ctx context.Context) (*AuthContext, error) {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	if !ok || authCtx == nil {
		return nil, trace.AccessDenied("request is not authenticated")
	}
	return authCtx, nil
}
