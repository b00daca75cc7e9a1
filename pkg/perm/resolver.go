package perm

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/team"
)

// Resolver expands a team member into its full principal set. It reads
// current state on every call; results are only reused within a single
// permission-check pipeline, never across calls.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a new principal resolver
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Expand returns the member itself, every group it belongs to, and every org
// node it belongs to together with all ancestors of those nodes. Missing or
// non-active members are not found.
func (r *Resolver) Expand(ctx context.Context, memberID int64) (*PrincipalSet, error) {
	var teamID int64
	var status team.Status
	err := r.db.QueryRowContext(ctx,
		`SELECT team_id, status FROM team_members WHERE id = $1`, memberID,
	).Scan(&teamID, &status)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("member %d not found", memberID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to look up member")
	}
	if status != team.StatusActive {
		return nil, trace.NotFound("member %d is not active", memberID)
	}

	set := &PrincipalSet{MemberID: memberID, TeamID: teamID}

	set.GroupIDs, err = r.memberGroups(ctx, memberID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	set.OrgIDs, err = r.memberOrgsWithAncestors(ctx, memberID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return set, nil
}

func (r *Resolver) memberGroups(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE member_id = $1`, memberID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to query group memberships")
	}
	defer rows.Close()
	return scanIDs(rows)
}

// memberOrgsWithAncestors walks the closure index upward: ancestors of every
// directly-joined node, the nodes themselves included via depth-0 rows.
// Inheritance is upward-only; descendants of joined nodes are not included.
func (r *Resolver) memberOrgsWithAncestors(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT c.ancestor_id
		 FROM org_members om
		 JOIN org_closure c ON c.descendant_id = om.org_id
		 WHERE om.member_id = $1`,
		memberID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to query org memberships")
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err, "failed to scan id")
		}
		ids = append(ids, id)
	}
	return ids, trace.Wrap(rows.Err())
}
