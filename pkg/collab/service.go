package collab

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/directory"
	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/perm"
)

// Service manages collaborator assignments on shared resources
type Service struct {
	db      *sql.DB
	ledger  *perm.Ledger
	lookup  directory.Lookup
	metrics *observability.Metrics
}

// NewService creates a collaborator service. Metrics may be nil.
func NewService(db *sql.DB, ledger *perm.Ledger, lookup directory.Lookup, metrics *observability.Metrics) *Service {
	return &Service{db: db, ledger: ledger, lookup: lookup, metrics: metrics}
}

// UpdateCollaborators applies an assignment batch. Grants for listed
// principals are created or overwritten; grants for principals not in
// the request are left untouched. Unknown or inactive principals are
// dropped and reported in the result rather than failing the batch.
func (s *Service) UpdateCollaborators(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if !req.ResourceType.Valid() {
		return nil, trace.BadParameter("invalid resource type %q", req.ResourceType)
	}
	if req.Members == nil && req.Groups == nil && req.Orgs == nil {
		return nil, trace.BadParameter("at least one principal list is required")
	}

	fallback := perm.DefaultPermission
	if req.Permission != nil {
		fallback = *req.Permission
	}

	result := &UpdateResult{}

	memberPerms := entryPermissions(req.Members, fallback)
	validMembers, err := s.filterIDs(ctx,
		`SELECT id FROM team_members WHERE team_id = $1 AND status = 'active' AND id IN (%s)`,
		req.TeamID, entryIDs(req.Members))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result.Members.Ignored = len(req.Members) - len(validMembers)

	groupPerms := entryPermissions(req.Groups, fallback)
	validGroups, err := s.filterIDs(ctx,
		`SELECT id FROM member_groups WHERE team_id = $1 AND id IN (%s)`,
		req.TeamID, entryIDs(req.Groups))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result.Groups.Ignored = len(req.Groups) - len(validGroups)

	orgPerms := entryPermissions(req.Orgs, fallback)
	validOrgs, err := s.filterIDs(ctx,
		`SELECT id FROM org_nodes WHERE team_id = $1 AND id IN (%s)`,
		req.TeamID, entryIDs(req.Orgs))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result.Orgs.Ignored = len(req.Orgs) - len(validOrgs)

	apply := func(p perm.Principal, permission perm.Bitmask) error {
		err := s.ledger.UpsertGrant(ctx, perm.Grant{
			TeamID:       req.TeamID,
			ResourceType: req.ResourceType,
			ResourceID:   req.ResourceID,
			Principal:    p,
			Permission:   permission,
		})
		if err != nil {
			return trace.Wrap(err)
		}
		if s.metrics != nil {
			s.metrics.GrantWritesTotal.WithLabelValues("upsert", string(p.Kind())).Inc()
		}
		return nil
	}

	for _, id := range validMembers {
		if err := apply(perm.MemberPrincipal(id), memberPerms[id]); err != nil {
			return nil, err
		}
		result.Members.Applied++
	}
	for _, id := range validGroups {
		if err := apply(perm.GroupPrincipal(id), groupPerms[id]); err != nil {
			return nil, err
		}
		result.Groups.Applied++
	}
	for _, id := range validOrgs {
		if err := apply(perm.OrgPrincipal(id), orgPerms[id]); err != nil {
			return nil, err
		}
		result.Orgs.Applied++
	}

	return result, nil
}

// entryIDs flattens a batch list to its principal ids
func entryIDs(entries []Entry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// entryPermissions maps each id to its effective permission. A
// duplicated id resolves to its last entry, matching upsert order.
func entryPermissions(entries []Entry, fallback perm.Bitmask) map[int64]perm.Bitmask {
	perms := make(map[int64]perm.Bitmask, len(entries))
	for _, e := range entries {
		p := fallback
		if e.Permission != nil {
			p = *e.Permission
		}
		perms[e.ID] = p
	}
	return perms
}

// DeleteCollaborator revokes one principal's grant on a resource
func (s *Service) DeleteCollaborator(ctx context.Context, resourceType perm.ResourceType, resourceID int64, p perm.Principal) error {
	if err := s.ledger.RevokeGrant(ctx, resourceType, resourceID, p); err != nil {
		return trace.Wrap(err)
	}
	if s.metrics != nil {
		s.metrics.GrantWritesTotal.WithLabelValues("revoke", string(p.Kind())).Inc()
	}
	return nil
}

// ListCollaborators returns every grant on a resource decorated with
// display info. Principals whose display lookup fails are still listed
// with a placeholder name so one stale entry cannot hide the rest.
func (s *Service) ListCollaborators(ctx context.Context, resourceType perm.ResourceType, resourceID int64) ([]Collaborator, error) {
	grants, err := s.ledger.ListGrants(ctx, resourceType, resourceID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	collaborators := make([]Collaborator, 0, len(grants))
	for _, g := range grants {
		c := Collaborator{
			Principal:  g.Principal,
			Kind:       string(g.Principal.Kind()),
			ID:         g.Principal.ID(),
			Permission: g.Permission,
			Name:       "Unknown",
		}
		if d, err := s.lookup.Display(ctx, g.Principal); err == nil {
			c.Name = d.Name
			c.Avatar = d.Avatar
		}
		collaborators = append(collaborators, c)
	}
	return collaborators, nil
}

// filterIDs keeps the IDs that exist under the given team. Duplicates
// in the input collapse to one row.
func (s *Service) filterIDs(ctx context.Context, queryTemplate string, teamID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	placeholders := make([]string, len(unique))
	args := make([]interface{}, 0, len(unique)+1)
	args = append(args, teamID)
	for i, id := range unique {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(queryTemplate, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var valid []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err)
		}
		valid = append(valid, id)
	}
	return valid, trace.Wrap(rows.Err())
}
