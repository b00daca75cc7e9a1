package team

import (
	"context"
	"database/sql"
	"time"

	"github.com/gravitational/trace"
)

// Store handles team and membership persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new team store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTeam creates a team together with its owner member in one
// transaction, so the single-owner invariant holds from the first write.
func (s *Store) CreateTeam(ctx context.Context, name string, ownerUserID int64, ownerName string) (*Team, *Member, error) {
	if name == "" {
		return nil, nil, trace.BadParameter("team name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	team := &Team{Name: name, CreatedAt: now, UpdatedAt: now}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO teams (name, created_at, updated_at) VALUES ($1, $2, $3) RETURNING id`,
		name, now, now,
	).Scan(&team.ID)
	if err != nil {
		return nil, nil, trace.Wrap(err, "failed to create team")
	}

	owner := &Member{
		TeamID:    team.ID,
		UserID:    ownerUserID,
		Name:      ownerName,
		Role:      RoleOwner,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO team_members (team_id, user_id, name, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		team.ID, ownerUserID, ownerName, RoleOwner, StatusActive, now, now,
	).Scan(&owner.ID)
	if err != nil {
		return nil, nil, trace.Wrap(err, "failed to create owner member")
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, trace.Wrap(err, "failed to commit team creation")
	}
	return team, owner, nil
}

// GetTeam retrieves a team by ID
func (s *Store) GetTeam(ctx context.Context, teamID int64) (*Team, error) {
	query := `
		SELECT id, name, COALESCE(avatar, ''), created_at, updated_at
		FROM teams
		WHERE id = $1
	`
	var t Team
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&t.ID, &t.Name, &t.Avatar, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("team %d not found", teamID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get team")
	}
	return &t, nil
}

// AddMember adds a user to a team as a regular member. The (user, team)
// pair is unique; re-adding an existing user is a conflict.
func (s *Store) AddMember(ctx context.Context, teamID, userID int64, name string, role Role) (*Member, error) {
	if !role.Valid() {
		return nil, trace.BadParameter("invalid member role %q", role)
	}
	if role == RoleOwner {
		return nil, trace.BadParameter("owner members are created with the team or via ChangeOwner")
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, userID,
	).Scan(&exists)
	if err != nil {
		return nil, trace.Wrap(err, "failed to check existing membership")
	}
	if exists > 0 {
		return nil, trace.AlreadyExists("user %d is already a member of team %d", userID, teamID)
	}

	now := time.Now()
	m := &Member{
		TeamID:    teamID,
		UserID:    userID,
		Name:      name,
		Role:      role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO team_members (team_id, user_id, name, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		teamID, userID, name, role, StatusActive, now, now,
	).Scan(&m.ID)
	if err != nil {
		return nil, trace.Wrap(err, "failed to add member")
	}
	return m, nil
}

// GetMember retrieves a member by ID
func (s *Store) GetMember(ctx context.Context, memberID int64) (*Member, error) {
	query := `
		SELECT id, team_id, user_id, name, COALESCE(avatar, ''), role, status, created_at, updated_at
		FROM team_members
		WHERE id = $1
	`
	var m Member
	err := s.db.QueryRowContext(ctx, query, memberID).Scan(
		&m.ID, &m.TeamID, &m.UserID, &m.Name, &m.Avatar, &m.Role, &m.Status,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("member %d not found", memberID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get member")
	}
	return &m, nil
}

// GetMemberByUser retrieves the membership record of a user within a team
func (s *Store) GetMemberByUser(ctx context.Context, teamID, userID int64) (*Member, error) {
	query := `
		SELECT id, team_id, user_id, name, COALESCE(avatar, ''), role, status, created_at, updated_at
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`
	var m Member
	err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(
		&m.ID, &m.TeamID, &m.UserID, &m.Name, &m.Avatar, &m.Role, &m.Status,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("user %d is not a member of team %d", userID, teamID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get member")
	}
	return &m, nil
}

// Owner returns the team's current owner member. Every team has exactly
// one; a missing owner indicates corrupted state and is reported as not found.
func (s *Store) Owner(ctx context.Context, teamID int64) (*Member, error) {
	query := `
		SELECT id, team_id, user_id, name, COALESCE(avatar, ''), role, status, created_at, updated_at
		FROM team_members
		WHERE team_id = $1 AND role = $2 AND status = $3
	`
	var m Member
	err := s.db.QueryRowContext(ctx, query, teamID, RoleOwner, StatusActive).Scan(
		&m.ID, &m.TeamID, &m.UserID, &m.Name, &m.Avatar, &m.Role, &m.Status,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("team %d has no active owner", teamID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "failed to get team owner")
	}
	return &m, nil
}

// TeamOwner returns the ID of the team's owner member. It satisfies the
// owner lookup needed by permission resolution.
func (s *Store) TeamOwner(ctx context.Context, teamID int64) (int64, error) {
	owner, err := s.Owner(ctx, teamID)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return owner.ID, nil
}

// ListMembers lists members of a team, optionally filtered by status
func (s *Store) ListMembers(ctx context.Context, teamID int64, status Status) ([]Member, error) {
	query := `
		SELECT id, team_id, user_id, name, COALESCE(avatar, ''), role, status, created_at, updated_at
		FROM team_members
		WHERE team_id = $1
	`
	args := []interface{}{teamID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list members")
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(
			&m.ID, &m.TeamID, &m.UserID, &m.Name, &m.Avatar, &m.Role, &m.Status,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, trace.Wrap(err, "failed to scan member")
		}
		members = append(members, m)
	}
	return members, trace.Wrap(rows.Err())
}

// UpdateMemberName updates a member's display name
func (s *Store) UpdateMemberName(ctx context.Context, memberID int64, name string) error {
	if name == "" {
		return trace.BadParameter("member name is required")
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE team_members SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now(), memberID,
	)
	if err != nil {
		return trace.Wrap(err, "failed to update member name")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return trace.NotFound("member %d not found", memberID)
	}
	return nil
}

// SetMemberStatus flips a member's status. Callers own the state-machine
// rules; this is the raw write.
func (s *Store) SetMemberStatus(ctx context.Context, memberID int64, status Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE team_members SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), memberID,
	)
	if err != nil {
		return trace.Wrap(err, "failed to set member status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return trace.NotFound("member %d not found", memberID)
	}
	return nil
}

// DeleteMemberAndUser permanently removes a member record and the backing
// user account in one transaction. Only reachable through the lifecycle's
// hard-delete transition.
func (s *Store) DeleteMemberAndUser(ctx context.Context, memberID int64) error {
	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return trace.Wrap(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE id = $1`, memberID); err != nil {
		return trace.Wrap(err, "failed to delete member")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, member.UserID); err != nil {
		return trace.Wrap(err, "failed to delete user account")
	}

	return trace.Wrap(tx.Commit(), "failed to commit member deletion")
}
