package perm

import (
	"context"
	"database/sql"
	"time"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/team"
)

// OwnerLookup resolves a team's current owner member. Implemented by
// team.Store.
type OwnerLookup interface {
	TeamOwner(ctx context.Context, teamID int64) (int64, error)
}

// Ledger stores grants and computes effective permissions
type Ledger struct {
	db       *sql.DB
	resolver *Resolver
	owners   OwnerLookup
}

// NewLedger creates a new permission ledger
func NewLedger(db *sql.DB, owners OwnerLookup) *Ledger {
	return &Ledger{db: db, resolver: NewResolver(db), owners: owners}
}

// Resolver exposes the ledger's principal resolver
func (l *Ledger) Resolver() *Resolver {
	return l.resolver
}

// Resolve computes the effective permission of a member on a resource: the
// bitwise OR of every grant whose principal is the member itself, one of its
// groups, or one of its ancestor-inclusive org nodes.
//
// The team owner resolves to full access on its own team resource without
// consulting grants. This is the single implicit bypass in the system; app
// and dataset ownership is a plain owner field on those resources and goes
// through grants like everyone else.
func (l *Ledger) Resolve(ctx context.Context, resourceType ResourceType, resourceID, memberID int64) (Bitmask, error) {
	if !resourceType.Valid() {
		return 0, trace.BadParameter("unknown resource type %q", resourceType)
	}

	set, err := l.resolver.Expand(ctx, memberID)
	if err != nil {
		return 0, trace.Wrap(err)
	}

	if resourceType == ResourceTeam && resourceID == set.TeamID {
		ownerID, err := l.owners.TeamOwner(ctx, set.TeamID)
		if err != nil && !trace.IsNotFound(err) {
			return 0, trace.Wrap(err)
		}
		if err == nil && ownerID == memberID {
			return FullAccess, nil
		}
	}

	grants, err := l.ListGrants(ctx, resourceType, resourceID)
	if err != nil {
		return 0, trace.Wrap(err)
	}

	groupSet := toSet(set.GroupIDs)
	orgSet := toSet(set.OrgIDs)

	var mask Bitmask
	for _, g := range grants {
		switch g.Principal.Kind() {
		case KindMember:
			if g.Principal.ID() == memberID {
				mask |= g.Permission
			}
		case KindGroup:
			if groupSet[g.Principal.ID()] {
				mask |= g.Permission
			}
		case KindOrg:
			if orgSet[g.Principal.ID()] {
				mask |= g.Permission
			}
		}
	}
	return mask, nil
}

// UpsertGrant writes a grant, overwriting the permission if the (resource,
// principal) row already exists. The principal must belong to the grant's
// team and still exist (members additionally must be active).
func (l *Ledger) UpsertGrant(ctx context.Context, g Grant) error {
	if !g.ResourceType.Valid() {
		return trace.BadParameter("unknown resource type %q", g.ResourceType)
	}
	if g.Principal.IsZero() {
		return trace.BadParameter("grant principal is required")
	}
	if err := l.validatePrincipal(ctx, g.TeamID, g.Principal); err != nil {
		return trace.Wrap(err)
	}

	now := time.Now()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO resource_permissions
			(team_id, resource_type, resource_id, principal_kind, principal_id, permission, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (resource_type, resource_id, principal_kind, principal_id)
		 DO UPDATE SET permission = $6, updated_at = $8`,
		g.TeamID, g.ResourceType, g.ResourceID, g.Principal.Kind(), g.Principal.ID(),
		int64(g.Permission), now, now,
	)
	return trace.Wrap(err, "failed to upsert grant")
}

// RevokeGrant removes one grant. Revoking a grant that does not exist is an
// error, not a silent no-op.
func (l *Ledger) RevokeGrant(ctx context.Context, resourceType ResourceType, resourceID int64, p Principal) error {
	if p.IsZero() {
		return trace.BadParameter("grant principal is required")
	}
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM resource_permissions
		 WHERE resource_type = $1 AND resource_id = $2 AND principal_kind = $3 AND principal_id = $4`,
		resourceType, resourceID, p.Kind(), p.ID(),
	)
	if err != nil {
		return trace.Wrap(err, "failed to revoke grant")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return trace.NotFound("no grant for %s on %s %d", p, resourceType, resourceID)
	}
	return nil
}

// RevokeAllForPrincipal deletes every grant held by a principal within a
// team. Used when the principal ceases to exist; zero matches is fine.
func (l *Ledger) RevokeAllForPrincipal(ctx context.Context, teamID int64, p Principal) (int64, error) {
	if p.IsZero() {
		return 0, trace.BadParameter("grant principal is required")
	}
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM resource_permissions
		 WHERE team_id = $1 AND principal_kind = $2 AND principal_id = $3`,
		teamID, p.Kind(), p.ID(),
	)
	if err != nil {
		return 0, trace.Wrap(err, "failed to revoke principal grants")
	}
	affected, err := result.RowsAffected()
	return affected, trace.Wrap(err)
}

// ListGrants returns every grant for a resource
func (l *Ledger) ListGrants(ctx context.Context, resourceType ResourceType, resourceID int64) ([]Grant, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, team_id, resource_type, resource_id, principal_kind, principal_id, permission, created_at, updated_at
		 FROM resource_permissions
		 WHERE resource_type = $1 AND resource_id = $2
		 ORDER BY principal_kind ASC, principal_id ASC`,
		resourceType, resourceID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list grants")
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		var kind PrincipalKind
		var principalID, permission int64
		if err := rows.Scan(
			&g.ID, &g.TeamID, &g.ResourceType, &g.ResourceID, &kind, &principalID,
			&permission, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, trace.Wrap(err, "failed to scan grant")
		}
		p, err := NewPrincipal(kind, principalID)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		g.Principal = p
		g.Permission = Bitmask(permission)
		grants = append(grants, g)
	}
	return grants, trace.Wrap(rows.Err())
}

// validatePrincipal checks that the principal exists and is scoped to the
// team.
func (l *Ledger) validatePrincipal(ctx context.Context, teamID int64, p Principal) error {
	var count int
	var err error
	switch p.Kind() {
	case KindMember:
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM team_members WHERE id = $1 AND team_id = $2 AND status = $3`,
			p.ID(), teamID, team.StatusActive,
		).Scan(&count)
	case KindGroup:
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM member_groups WHERE id = $1 AND team_id = $2`,
			p.ID(), teamID,
		).Scan(&count)
	case KindOrg:
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM org_nodes WHERE id = $1 AND team_id = $2`,
			p.ID(), teamID,
		).Scan(&count)
	default:
		return trace.BadParameter("unknown principal kind %q", p.Kind())
	}
	if err != nil {
		return trace.Wrap(err, "failed to validate principal")
	}
	if count == 0 {
		return trace.BadParameter("%s is not a valid principal of team %d", p, teamID)
	}
	return nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
