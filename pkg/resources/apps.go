package resources

import (
	"context"
	"database/sql"
	"time"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/audit"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/team"
)

// App is one team application
type App struct {
	ID            int64     `json:"id"`
	TeamID        int64     `json:"teamId"`
	OwnerMemberID int64     `json:"ownerMemberId"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Apps manages application ownership
type Apps struct {
	db     *sql.DB
	teams  *team.Store
	ledger *perm.Ledger
	audit  *audit.Recorder
}

// NewApps creates the app ownership service. The audit recorder may be
// nil.
func NewApps(db *sql.DB, teams *team.Store, ledger *perm.Ledger, auditRec *audit.Recorder) *Apps {
	return &Apps{db: db, teams: teams, ledger: ledger, audit: auditRec}
}

// GetApp fetches one app
func (a *Apps) GetApp(ctx context.Context, appID int64) (*App, error) {
	var app App
	err := a.db.QueryRowContext(ctx, `
		SELECT id, team_id, owner_member_id, name, created_at, updated_at
		FROM apps WHERE id = $1`, appID).Scan(
		&app.ID, &app.TeamID, &app.OwnerMemberID, &app.Name, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("app %d not found", appID)
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &app, nil
}

// ChangeOwner hands one app to a different member of the same team.
// The previous owner's direct grant is dropped and the new owner gets
// full access.
func (a *Apps) ChangeOwner(ctx context.Context, appID, newOwnerMemberID int64) error {
	app, err := a.GetApp(ctx, appID)
	if err != nil {
		return trace.Wrap(err)
	}
	if app.OwnerMemberID == newOwnerMemberID {
		return nil
	}

	newOwner, err := a.teams.GetMember(ctx, newOwnerMemberID)
	if err != nil {
		return trace.Wrap(err)
	}
	if newOwner.TeamID != app.TeamID {
		return trace.BadParameter("member %d does not belong to team %d", newOwnerMemberID, app.TeamID)
	}
	if !newOwner.IsActive() {
		return trace.BadParameter("member %d is not active", newOwnerMemberID)
	}

	result, err := a.db.ExecContext(ctx, `
		UPDATE apps SET owner_member_id = $1, updated_at = $2 WHERE id = $3`,
		newOwnerMemberID, time.Now().UTC(), appID)
	if err != nil {
		return trace.Wrap(err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return trace.Wrap(err)
	} else if n == 0 {
		return trace.NotFound("app %d not found", appID)
	}

	// The old owner keeps access only through whatever grants remain.
	err = a.ledger.RevokeGrant(ctx, perm.ResourceApp, appID, perm.MemberPrincipal(app.OwnerMemberID))
	if err != nil && !trace.IsNotFound(err) {
		return trace.Wrap(err)
	}

	err = a.ledger.UpsertGrant(ctx, perm.Grant{
		TeamID:       app.TeamID,
		ResourceType: perm.ResourceApp,
		ResourceID:   appID,
		Principal:    perm.MemberPrincipal(newOwnerMemberID),
		Permission:   perm.ManagePermission,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	if a.audit != nil {
		// Best effort; the handoff already happened.
		_ = a.audit.Record(ctx, audit.Entry{
			TeamID:        app.TeamID,
			ActorMemberID: newOwnerMemberID,
			Event:         audit.EventAppChangeOwner,
			Detail: map[string]interface{}{
				"appId":         appID,
				"previousOwner": app.OwnerMemberID,
			},
		})
	}
	return nil
}
