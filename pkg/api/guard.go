package api

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/auth"
	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/perm"
)

// permissionGuard centralizes the manage-permission checks handlers
// run before mutating a resource. Root override requests skip the
// ledger entirely.
type permissionGuard struct {
	ledger  *perm.Ledger
	metrics *observability.Metrics
}

// requireManage returns AccessDenied unless the caller holds manage
// permission on the resource.
func (g *permissionGuard) requireManage(ctx context.Context, authCtx *auth.AuthContext, resourceType perm.ResourceType, resourceID int64) error {
	return g.require(ctx, authCtx, resourceType, resourceID, func(b perm.Bitmask) bool { return b.HasManage() })
}

// requireRead returns AccessDenied unless the caller holds read
// permission on the resource.
func (g *permissionGuard) requireRead(ctx context.Context, authCtx *auth.AuthContext, resourceType perm.ResourceType, resourceID int64) error {
	return g.require(ctx, authCtx, resourceType, resourceID, func(b perm.Bitmask) bool { return b.HasRead() })
}

func (g *permissionGuard) require(ctx context.Context, authCtx *auth.AuthContext, resourceType perm.ResourceType, resourceID int64, allowed func(perm.Bitmask) bool) error {
	if authCtx.IsRootOverride {
		g.record(resourceType, "root_override")
		return nil
	}

	start := time.Now()
	bitmask, err := g.ledger.Resolve(ctx, resourceType, resourceID, authCtx.MemberID)
	if g.metrics != nil {
		g.metrics.PermissionCheckDuration.WithLabelValues(string(resourceType)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return trace.Wrap(err)
	}
	if !allowed(bitmask) {
		g.record(resourceType, "denied")
		return trace.AccessDenied("member %d lacks permission on %s %d", authCtx.MemberID, resourceType, resourceID)
	}
	g.record(resourceType, "allowed")
	return nil
}

func (g *permissionGuard) record(resourceType perm.ResourceType, outcome string) {
	if g.metrics != nil {
		g.metrics.PermissionChecksTotal.WithLabelValues(string(resourceType), outcome).Inc()
	}
}
