package orgtree

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// Store handles org hierarchy persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new org tree store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateNode creates an org node under the given parent (nil for a root
// node). Sibling names are unique per parent, root names unique per team.
func (s *Store) CreateNode(ctx context.Context, teamID int64, parentID *int64, name string) (*Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, trace.BadParameter("org node name is required")
	}
	if len([]rune(name)) > MaxNodeNameLength {
		return nil, trace.BadParameter("org node name exceeds %d characters", MaxNodeNameLength)
	}

	if parentID != nil {
		parent, err := s.GetNode(ctx, *parentID)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if parent.TeamID != teamID {
			return nil, trace.NotFound("parent org %d not found in team %d", *parentID, teamID)
		}
	}

	taken, err := s.siblingNameTaken(ctx, teamID, parentID, name, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if taken {
		return nil, trace.AlreadyExists("org node %q already exists under the same parent", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	node := &Node{
		TeamID:    teamID,
		ParentID:  parentID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO org_nodes (team_id, parent_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		teamID, parentID, name, now, now,
	).Scan(&node.ID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to create org node")
	}

	// Self row plus one closure row per ancestor of the parent keeps the
	// index complete without touching existing rows.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO org_closure (ancestor_id, descendant_id, depth) VALUES ($1, $1, 0)`,
		node.ID,
	); err != nil {
		return nil, trace.Wrap(err, "failed to index org node")
	}
	if parentID != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO org_closure (ancestor_id, descendant_id, depth)
			 SELECT ancestor_id, $1, depth + 1 FROM org_closure WHERE descendant_id = $2`,
			node.ID, *parentID,
		); err != nil {
			return nil, trace.Wrap(err, "failed to index org node ancestry")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, trace.Wrap(err, "failed to commit org node creation")
	}
	return node, nil
}

// GetNode retrieves an org node by ID
func (s *Store) GetNode(ctx context.Context, nodeID int64) (*Node, error) {
	query := `
		SELECT id, team_id, parent_id, name, COALESCE(avatar, ''), COALESCE(description, ''), created_at, updated_at
		FROM org_nodes
		WHERE id = $1
	`
	var n Node
	var parentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, nodeID).Scan(
		&n.ID, &n.TeamID, &parentID, &n.Name, &n.Avatar, &n.Description,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("org node %d not found", nodeID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get org node")
	}
	if parentID.Valid {
		id := parentID.Int64
		n.ParentID = &id
	}
	return &n, nil
}

// UpdateNodeName renames a node, honoring sibling uniqueness
func (s *Store) UpdateNodeName(ctx context.Context, nodeID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return trace.BadParameter("org node name is required")
	}
	if len([]rune(name)) > MaxNodeNameLength {
		return trace.BadParameter("org node name exceeds %d characters", MaxNodeNameLength)
	}

	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return trace.Wrap(err)
	}
	taken, err := s.siblingNameTaken(ctx, node.TeamID, node.ParentID, name, nodeID)
	if err != nil {
		return trace.Wrap(err)
	}
	if taken {
		return trace.AlreadyExists("org node %q already exists under the same parent", name)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE org_nodes SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now(), nodeID,
	)
	return trace.Wrap(err, "failed to rename org node")
}

// ListRoots lists a team's top-level org nodes
func (s *Store) ListRoots(ctx context.Context, teamID int64) ([]Node, error) {
	query := `
		SELECT id, team_id, parent_id, name, COALESCE(avatar, ''), COALESCE(description, ''), created_at, updated_at
		FROM org_nodes
		WHERE team_id = $1 AND parent_id IS NULL
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list root org nodes")
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListChildren lists the direct children of a node
func (s *Store) ListChildren(ctx context.Context, nodeID int64) ([]Node, error) {
	query := `
		SELECT id, team_id, parent_id, name, COALESCE(avatar, ''), COALESCE(description, ''), created_at, updated_at
		FROM org_nodes
		WHERE parent_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list child org nodes")
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListDescendants lists every node strictly below the given node
func (s *Store) ListDescendants(ctx context.Context, nodeID int64) ([]Node, error) {
	query := `
		SELECT n.id, n.team_id, n.parent_id, n.name, COALESCE(n.avatar, ''), COALESCE(n.description, ''), n.created_at, n.updated_at
		FROM org_nodes n
		JOIN org_closure c ON c.descendant_id = n.id
		WHERE c.ancestor_id = $1 AND c.depth > 0
		ORDER BY c.depth ASC, n.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list descendant org nodes")
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AncestorChain returns the node and all its ancestors ordered from the node
// itself up to its root.
func (s *Store) AncestorChain(ctx context.Context, nodeID int64) ([]Node, error) {
	query := `
		SELECT n.id, n.team_id, n.parent_id, n.name, COALESCE(n.avatar, ''), COALESCE(n.description, ''), n.created_at, n.updated_at
		FROM org_nodes n
		JOIN org_closure c ON c.ancestor_id = n.id
		WHERE c.descendant_id = $1
		ORDER BY c.depth ASC
	`
	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to resolve ancestor chain")
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if len(nodes) == 0 {
		return nil, trace.NotFound("org node %d not found", nodeID)
	}
	return nodes, nil
}

// DeleteNode removes a childless node along with its memberships and closure
// rows. Nodes with children cannot be deleted; there is no recursive cascade.
func (s *Store) DeleteNode(ctx context.Context, nodeID int64) error {
	if _, err := s.GetNode(ctx, nodeID); err != nil {
		return trace.Wrap(err)
	}

	var children int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM org_nodes WHERE parent_id = $1`, nodeID,
	).Scan(&children)
	if err != nil {
		return trace.Wrap(err, "failed to count children")
	}
	if children > 0 {
		return trace.AlreadyExists("org node %d has %d children and cannot be deleted", nodeID, children)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM org_members WHERE org_id = $1`, nodeID); err != nil {
		return trace.Wrap(err, "failed to delete org memberships")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM org_closure WHERE descendant_id = $1 OR ancestor_id = $1`, nodeID,
	); err != nil {
		return trace.Wrap(err, "failed to delete closure rows")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM org_nodes WHERE id = $1`, nodeID); err != nil {
		return trace.Wrap(err, "failed to delete org node")
	}

	return trace.Wrap(tx.Commit(), "failed to commit org node deletion")
}

// AddMember places a member into an org node. Re-adding is a no-op.
func (s *Store) AddMember(ctx context.Context, orgID, memberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_members (org_id, member_id) VALUES ($1, $2)
		 ON CONFLICT (org_id, member_id) DO NOTHING`,
		orgID, memberID,
	)
	return trace.Wrap(err, "failed to add org member")
}

// RemoveMember removes a member from one org node
func (s *Store) RemoveMember(ctx context.Context, orgID, memberID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM org_members WHERE org_id = $1 AND member_id = $2`,
		orgID, memberID,
	)
	if err != nil {
		return trace.Wrap(err, "failed to remove org member")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return trace.NotFound("member %d does not belong to org %d", memberID, orgID)
	}
	return nil
}

// RemoveAllForMember deletes every org membership of a member within a team.
// Safe to call when none remain.
func (s *Store) RemoveAllForMember(ctx context.Context, teamID, memberID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM org_members
		 WHERE member_id = $1
		   AND org_id IN (SELECT id FROM org_nodes WHERE team_id = $2)`,
		memberID, teamID,
	)
	if err != nil {
		return 0, trace.Wrap(err, "failed to clear org memberships")
	}
	affected, err := result.RowsAffected()
	return affected, trace.Wrap(err)
}

// ListMemberOrgs returns the IDs of every node the member directly belongs to
func (s *Store) ListMemberOrgs(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT org_id FROM org_members WHERE member_id = $1`, memberID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list member orgs")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err, "failed to scan org id")
		}
		ids = append(ids, id)
	}
	return ids, trace.Wrap(rows.Err())
}

// CountMembers returns the number of members directly in a node
func (s *Store) CountMembers(ctx context.Context, orgID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM org_members WHERE org_id = $1`, orgID,
	).Scan(&count)
	return count, trace.Wrap(err, "failed to count org members")
}

// siblingNameTaken checks name uniqueness among a node's siblings, ignoring
// excludeID (0 to ignore nothing). Root nodes compare against other roots of
// the same team.
func (s *Store) siblingNameTaken(ctx context.Context, teamID int64, parentID *int64, name string, excludeID int64) (bool, error) {
	var count int
	var err error
	if parentID == nil {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM org_nodes
			 WHERE team_id = $1 AND parent_id IS NULL AND name = $2 AND id <> $3`,
			teamID, name, excludeID,
		).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM org_nodes
			 WHERE team_id = $1 AND parent_id = $2 AND name = $3 AND id <> $4`,
			teamID, *parentID, name, excludeID,
		).Scan(&count)
	}
	if err != nil {
		return false, trace.Wrap(err, "failed to check sibling names")
	}
	return count > 0, nil
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		var n Node
		var parentID sql.NullInt64
		if err := rows.Scan(
			&n.ID, &n.TeamID, &parentID, &n.Name, &n.Avatar, &n.Description,
			&n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, trace.Wrap(err, "failed to scan org node")
		}
		if parentID.Valid {
			id := parentID.Int64
			n.ParentID = &id
		}
		nodes = append(nodes, n)
	}
	return nodes, trace.Wrap(rows.Err())
}
