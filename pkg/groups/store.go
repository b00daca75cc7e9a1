package groups

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// Store handles group persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new group store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateGroup creates a group and makes ownerMemberID its owner in the same
// transaction, so a non-empty group always has exactly one owner.
func (s *Store) CreateGroup(ctx context.Context, teamID int64, name string, ownerMemberID int64) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, trace.BadParameter("group name is required")
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM member_groups WHERE team_id = $1 AND name = $2`,
		teamID, name,
	).Scan(&count)
	if err != nil {
		return nil, trace.Wrap(err, "failed to check group name")
	}
	if count > 0 {
		return nil, trace.AlreadyExists("group %q already exists in team %d", name, teamID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	g := &Group{TeamID: teamID, Name: name, CreatedAt: now, UpdatedAt: now}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO member_groups (team_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		teamID, name, now, now,
	).Scan(&g.ID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to create group")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, member_id, role) VALUES ($1, $2, $3)`,
		g.ID, ownerMemberID, RoleOwner,
	); err != nil {
		return nil, trace.Wrap(err, "failed to add group owner")
	}

	if err := tx.Commit(); err != nil {
		return nil, trace.Wrap(err, "failed to commit group creation")
	}
	return g, nil
}

// GetGroup retrieves a group by ID
func (s *Store) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	query := `
		SELECT id, team_id, name, COALESCE(avatar, ''), created_at, updated_at
		FROM member_groups
		WHERE id = $1
	`
	var g Group
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&g.ID, &g.TeamID, &g.Name, &g.Avatar, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("group %d not found", groupID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get group")
	}
	return &g, nil
}

// ListGroups lists all groups in a team
func (s *Store) ListGroups(ctx context.Context, teamID int64) ([]Group, error) {
	query := `
		SELECT id, team_id, name, COALESCE(avatar, ''), created_at, updated_at
		FROM member_groups
		WHERE team_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list groups")
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.TeamID, &g.Name, &g.Avatar, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, trace.Wrap(err, "failed to scan group")
		}
		groups = append(groups, g)
	}
	return groups, trace.Wrap(rows.Err())
}

// AddMember adds a member to a group. Assigning the owner role transfers
// group ownership: the previous owner is demoted in the same transaction.
func (s *Store) AddMember(ctx context.Context, groupID, memberID int64, role Role) error {
	if !role.Valid() {
		return trace.BadParameter("invalid group role %q", role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if role == RoleOwner {
		if _, err := tx.ExecContext(ctx,
			`UPDATE group_members SET role = $1 WHERE group_id = $2 AND role = $3 AND member_id <> $4`,
			RoleMember, groupID, RoleOwner, memberID,
		); err != nil {
			return trace.Wrap(err, "failed to demote current group owner")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, member_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, member_id) DO UPDATE SET role = $3`,
		groupID, memberID, role,
	); err != nil {
		return trace.Wrap(err, "failed to add group member")
	}

	return trace.Wrap(tx.Commit(), "failed to commit group membership")
}

// RemoveMember removes a member from a group. The group owner cannot be
// removed while other members remain; ownership must be transferred first.
func (s *Store) RemoveMember(ctx context.Context, groupID, memberID int64) error {
	var role Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return trace.NotFound("member %d does not belong to group %d", memberID, groupID)
	}
	if err != nil {
		return trace.Wrap(err, "failed to get group membership")
	}

	if role == RoleOwner {
		var others int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM group_members WHERE group_id = $1 AND member_id <> $2`,
			groupID, memberID,
		).Scan(&others)
		if err != nil {
			return trace.Wrap(err, "failed to count group members")
		}
		if others > 0 {
			return trace.AlreadyExists("group %d owner cannot be removed before ownership is transferred", groupID)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID,
	)
	return trace.Wrap(err, "failed to remove group member")
}

// RemoveAllForMember deletes every group membership of a member within a
// team. Used by the departure cascade; ownership rules do not apply because
// the member is leaving the team entirely.
func (s *Store) RemoveAllForMember(ctx context.Context, teamID, memberID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members
		 WHERE member_id = $1
		   AND group_id IN (SELECT id FROM member_groups WHERE team_id = $2)`,
		memberID, teamID,
	)
	if err != nil {
		return 0, trace.Wrap(err, "failed to clear group memberships")
	}
	affected, err := result.RowsAffected()
	return affected, trace.Wrap(err)
}

// ListMemberGroups returns the IDs of every group the member belongs to,
// regardless of group role.
func (s *Store) ListMemberGroups(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE member_id = $1`, memberID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list member groups")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err, "failed to scan group id")
		}
		ids = append(ids, id)
	}
	return ids, trace.Wrap(rows.Err())
}

// ListMembers lists the memberships of a group
func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, member_id, role FROM group_members WHERE group_id = $1 ORDER BY member_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list group members")
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.MemberID, &m.Role); err != nil {
			return nil, trace.Wrap(err, "failed to scan group membership")
		}
		members = append(members, m)
	}
	return members, trace.Wrap(rows.Err())
}

// DeleteGroup removes a group and its memberships. Callers revoke the
// group's grants; the group principal ceases to exist after this.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return trace.Wrap(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return trace.Wrap(err, "failed to delete group memberships")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM member_groups WHERE id = $1`, groupID); err != nil {
		return trace.Wrap(err, "failed to delete group")
	}

	return trace.Wrap(tx.Commit(), "failed to commit group deletion")
}
