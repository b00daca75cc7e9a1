package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewware/teamcore/pkg/groups"
	"github.com/crewware/teamcore/pkg/orgtree"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/resources"
	"github.com/crewware/teamcore/pkg/team"
)

type fixture struct {
	db        *sql.DB
	teams     *team.Store
	groups    *groups.Store
	orgs      *orgtree.Store
	ledger    *perm.Ledger
	lifecycle *Lifecycle

	teamID int64
	owner  int64
	member int64
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			avatar TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE team_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			avatar TEXT,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			UNIQUE(user_id, team_id)
		);

		CREATE TABLE member_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			avatar TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE group_members (
			group_id INTEGER NOT NULL,
			member_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (group_id, member_id)
		);

		CREATE TABLE org_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			parent_id INTEGER,
			name TEXT NOT NULL,
			avatar TEXT,
			description TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE org_closure (
			ancestor_id INTEGER NOT NULL,
			descendant_id INTEGER NOT NULL,
			depth INTEGER NOT NULL,
			PRIMARY KEY (ancestor_id, descendant_id)
		);

		CREATE TABLE org_members (
			org_id INTEGER NOT NULL,
			member_id INTEGER NOT NULL,
			PRIMARY KEY (org_id, member_id)
		);

		CREATE TABLE resource_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id INTEGER NOT NULL,
			principal_kind TEXT NOT NULL,
			principal_id INTEGER NOT NULL,
			permission INTEGER NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			UNIQUE (resource_type, resource_id, principal_kind, principal_id)
		);

		CREATE TABLE member_departures (
			id TEXT PRIMARY KEY,
			team_id INTEGER NOT NULL,
			member_id INTEGER NOT NULL,
			owner_member_id INTEGER NOT NULL,
			reason TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			counts TEXT NOT NULL DEFAULT '{}',
			error TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE apps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			owner_member_id INTEGER NOT NULL,
			name TEXT
		);

		CREATE TABLE app_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_member_id INTEGER NOT NULL,
			app_id INTEGER
		);
	`)
	require.NoError(t, err)
	return db
}

// testRegistry sweeps only the tables the test schema carries.
func testRegistry() *resources.Registry {
	return resources.NewRegistry(
		resources.NewCollection("apps", "apps", "owner_member_id", "team_id"),
		resources.NewUnscopedCollection("app_versions", "app_versions", "owner_member_id"),
	)
}

func newFixture(t *testing.T, registry *resources.Registry) *fixture {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	if registry == nil {
		registry = testRegistry()
	}

	f := &fixture{
		db:     db,
		teams:  team.NewStore(db),
		groups: groups.NewStore(db),
		orgs:   orgtree.NewStore(db),
	}
	f.ledger = perm.NewLedger(db, f.teams)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	f.lifecycle = NewLifecycle(db, f.teams, f.groups, f.orgs, f.ledger, registry, nil, log, nil)

	ctx := context.Background()
	var ownerUser, memberUser int64
	require.NoError(t, db.QueryRow(`INSERT INTO users (name) VALUES ('alice') RETURNING id`).Scan(&ownerUser))
	require.NoError(t, db.QueryRow(`INSERT INTO users (name) VALUES ('bob') RETURNING id`).Scan(&memberUser))

	tm, owner, err := f.teams.CreateTeam(ctx, "engineering", ownerUser, "alice")
	require.NoError(t, err)
	member, err := f.teams.AddMember(ctx, tm.ID, memberUser, "bob", team.RoleMember)
	require.NoError(t, err)

	f.teamID = tm.ID
	f.owner = owner.ID
	f.member = member.ID
	return f
}

func (f *fixture) insertApp(t *testing.T, ownerMemberID int64, name string) int64 {
	var id int64
	err := f.db.QueryRow(
		`INSERT INTO apps (team_id, owner_member_id, name) VALUES ($1, $2, $3) RETURNING id`,
		f.teamID, ownerMemberID, name,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestLifecycle_Leave(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appID := f.insertApp(t, f.member, "chatbot")
	f.insertApp(t, f.member, "scraper")
	_, err := f.db.Exec(`INSERT INTO app_versions (owner_member_id, app_id) VALUES ($1, $2)`, f.member, appID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.UpsertGrant(ctx, perm.Grant{
		TeamID: f.teamID, ResourceType: perm.ResourceApp, ResourceID: appID,
		Principal: perm.MemberPrincipal(f.member), Permission: perm.ManagePermission,
	}))

	g, err := f.groups.CreateGroup(ctx, f.teamID, "backend", f.owner)
	require.NoError(t, err)
	require.NoError(t, f.groups.AddMember(ctx, g.ID, f.member, groups.RoleMember))

	node, err := f.orgs.CreateNode(ctx, f.teamID, nil, "company")
	require.NoError(t, err)
	require.NoError(t, f.orgs.AddMember(ctx, node.ID, f.member))

	d, err := f.lifecycle.Leave(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, DepartureCompleted, d.Status)
	assert.Equal(t, StepSetStatus, d.Step)
	assert.Equal(t, ReasonLeave, d.Reason)
	assert.Equal(t, f.owner, d.OwnerMemberID)
	assert.Equal(t, int64(2), d.Counts.Reassigned["apps"])
	assert.Equal(t, int64(1), d.Counts.Reassigned["app_versions"])
	assert.Equal(t, int64(1), d.Counts.GrantsRevoked)
	assert.Equal(t, int64(1), d.Counts.GroupsCleared)
	assert.Equal(t, int64(1), d.Counts.OrgsCleared)

	var appOwners int
	err = f.db.QueryRow(`SELECT COUNT(1) FROM apps WHERE owner_member_id = $1`, f.owner).Scan(&appOwners)
	require.NoError(t, err)
	assert.Equal(t, 2, appOwners)

	member, err := f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusForbidden, member.Status)

	stored, err := f.lifecycle.Departures().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DepartureCompleted, stored.Status)
	assert.Equal(t, d.Counts, stored.Counts)
	assert.Equal(t, 1, stored.Attempts)
}

func TestLifecycle_DepartGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.lifecycle.Leave(ctx, f.owner)
	assert.True(t, trace.IsAlreadyExists(err), "expected AlreadyExists, got %v", err)

	_, err = f.lifecycle.Leave(ctx, 9999)
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	_, err = f.lifecycle.Remove(ctx, f.member)
	require.NoError(t, err)

	_, err = f.lifecycle.Leave(ctx, f.member)
	assert.True(t, trace.IsAlreadyExists(err), "expected AlreadyExists, got %v", err)
}

func TestLifecycle_LeaveWithoutOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.db.Exec(`UPDATE team_members SET status = 'forbidden' WHERE id = $1`, f.owner)
	require.NoError(t, err)

	_, err = f.lifecycle.Leave(ctx, f.member)
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	// Nothing changed for the member.
	member, err := f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusActive, member.Status)
}

func TestLifecycle_Restore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.lifecycle.Restore(ctx, f.member)
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)

	_, err = f.lifecycle.Remove(ctx, f.member)
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.Restore(ctx, f.member))
	member, err := f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusActive, member.Status)
}

func TestLifecycle_HardDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.lifecycle.HardDelete(ctx, f.owner)
	assert.True(t, trace.IsAlreadyExists(err), "expected AlreadyExists, got %v", err)

	err = f.lifecycle.HardDelete(ctx, f.member)
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)

	_, err = f.lifecycle.Remove(ctx, f.member)
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.HardDelete(ctx, f.member))

	_, err = f.teams.GetMember(ctx, f.member)
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	var users int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(1) FROM users WHERE name = 'bob'`).Scan(&users))
	assert.Equal(t, 0, users)
}

func TestLifecycle_RetryAfterFailure(t *testing.T) {
	// The registry references a table that does not exist yet, so the
	// first step fails partway.
	registry := resources.NewRegistry(
		resources.NewCollection("apps", "apps", "owner_member_id", "team_id"),
		resources.NewCollection("notes", "notes", "owner_member_id", "team_id"),
	)
	f := newFixture(t, registry)
	ctx := context.Background()

	f.insertApp(t, f.member, "chatbot")

	d, err := f.lifecycle.Leave(ctx, f.member)
	require.Error(t, err)

	var pfe *PartialFailureError
	require.True(t, errors.As(err, &pfe), "expected PartialFailureError, got %v", err)
	assert.Equal(t, d.ID, pfe.DepartureID)
	assert.Equal(t, StepReassignResources, pfe.Step)
	assert.True(t, pfe.Retryable)

	stored, err := f.lifecycle.Departures().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DepartureFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)

	// The member is untouched until the whole sequence lands.
	member, err := f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusActive, member.Status)

	_, err = f.db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, team_id INTEGER, owner_member_id INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.Retry(ctx, d.ID))

	stored, err = f.lifecycle.Departures().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DepartureCompleted, stored.Status)
	assert.Empty(t, stored.Error)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, int64(1), stored.Counts.Reassigned["apps"])

	member, err = f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusForbidden, member.Status)
}

func TestLifecycle_RetryGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.lifecycle.Retry(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	d, err := f.lifecycle.Leave(ctx, f.member)
	require.NoError(t, err)

	err = f.lifecycle.Retry(ctx, d.ID)
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)
}

func TestLifecycle_RetryAlreadyFlipped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d, err := f.lifecycle.Leave(ctx, f.member)
	require.NoError(t, err)

	// Force the record back to failed while the flip already landed.
	d.Status = DepartureFailed
	d.Error = "simulated"
	require.NoError(t, f.lifecycle.Departures().Update(ctx, d))

	require.NoError(t, f.lifecycle.Retry(ctx, d.ID))

	stored, err := f.lifecycle.Departures().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DepartureCompleted, stored.Status)
	assert.Empty(t, stored.Error)
	assert.Equal(t, 1, stored.Attempts)
}

func TestSweeper_Sweep(t *testing.T) {
	registry := resources.NewRegistry(
		resources.NewCollection("notes", "notes", "owner_member_id", "team_id"),
	)
	f := newFixture(t, registry)
	ctx := context.Background()

	_, err := f.lifecycle.Leave(ctx, f.member)
	require.Error(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	sweeper := NewSweeper(f.lifecycle, "", log)

	// Still broken; the sweep leaves the departure failed.
	sweeper.Sweep(ctx)
	failed, err := f.lifecycle.Departures().ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)

	_, err = f.db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, team_id INTEGER, owner_member_id INTEGER)`)
	require.NoError(t, err)

	sweeper.Sweep(ctx)
	failed, err = f.lifecycle.Departures().ListFailed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)

	member, err := f.teams.GetMember(ctx, f.member)
	require.NoError(t, err)
	assert.Equal(t, team.StatusForbidden, member.Status)
}
