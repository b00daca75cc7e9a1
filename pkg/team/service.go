package team

import (
	"context"
	"database/sql"
	"time"

	"github.com/gravitational/trace"
)

// Service orchestrates team-level operations that span multiple member rows
type Service struct {
	db    *sql.DB
	store *Store
}

// NewService creates a new team service
func NewService(db *sql.DB) *Service {
	return &Service{db: db, store: NewStore(db)}
}

// Store exposes the underlying store
func (s *Service) Store() *Store {
	return s.store
}

// ChangeOwner transfers team ownership to another active member. The demotion
// of the current owner and the promotion of the new one happen in a single
// transaction so the team has exactly one owner at every commit point.
func (s *Service) ChangeOwner(ctx context.Context, teamID, newOwnerMemberID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()

	// Demote whoever currently holds the owner role. Exactly one row must
	// change; anything else means the invariant is already broken and the
	// transfer cannot proceed.
	result, err := tx.ExecContext(ctx,
		`UPDATE team_members SET role = $1, updated_at = $2 WHERE team_id = $3 AND role = $4`,
		RoleMember, now, teamID, RoleOwner,
	)
	if err != nil {
		return trace.Wrap(err, "failed to demote current owner")
	}
	demoted, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if demoted != 1 {
		return trace.AlreadyExists("team %d has %d owner members, expected exactly one", teamID, demoted)
	}

	// Promote the target. The status/team predicates make a stale or foreign
	// member ID a no-op, which we surface as a validation failure.
	result, err = tx.ExecContext(ctx,
		`UPDATE team_members SET role = $1, updated_at = $2
		 WHERE id = $3 AND team_id = $4 AND status = $5`,
		RoleOwner, now, newOwnerMemberID, teamID, StatusActive,
	)
	if err != nil {
		return trace.Wrap(err, "failed to promote new owner")
	}
	promoted, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err, "failed to get rows affected")
	}
	if promoted != 1 {
		return trace.BadParameter("member %d is not an active member of team %d", newOwnerMemberID, teamID)
	}

	return trace.Wrap(tx.Commit(), "failed to commit ownership transfer")
}
