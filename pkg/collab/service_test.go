package collab

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewware/teamcore/pkg/directory"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/team"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE team_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			avatar TEXT,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE member_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE org_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			name TEXT NOT NULL
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
	`)
	require.NoError(t, err)
	return db
}

func insertMember(t *testing.T, db *sql.DB, teamID int64, name string, status team.Status) int64 {
	now := time.Now()
	result, err := db.Exec(
		`INSERT INTO team_members (team_id, user_id, name, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		teamID, 0, name, team.RoleMember, status, now, now,
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertGroup(t *testing.T, db *sql.DB, teamID int64, name string) int64 {
	result, err := db.Exec(`INSERT INTO member_groups (team_id, name) VALUES ($1, $2)`, teamID, name)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

// fakeLookup serves canned display info and fails for unlisted principals.
type fakeLookup struct {
	displays map[perm.Principal]directory.Display
}

func (f *fakeLookup) Display(_ context.Context, p perm.Principal) (directory.Display, error) {
	if d, ok := f.displays[p]; ok {
		return d, nil
	}
	return directory.Display{}, trace.NotFound("%s not found", p)
}

func entries(ids ...int64) []Entry {
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id}
	}
	return out
}

func newTestService(db *sql.DB, lookup directory.Lookup) *Service {
	if lookup == nil {
		lookup = &fakeLookup{}
	}
	return NewService(db, perm.NewLedger(db, team.NewStore(db)), lookup, nil)
}

func TestService_UpdateCollaborators(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newTestService(db, nil)

	alice := insertMember(t, db, 1, "alice", team.StatusActive)
	gone := insertMember(t, db, 1, "gone", team.StatusForbidden)
	backend := insertGroup(t, db, 1, "backend")

	manage := perm.ManagePermission
	result, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID:       1,
		ResourceType: perm.ResourceApp,
		ResourceID:   7,
		Members:      entries(alice, gone, 9999),
		Groups:       entries(backend),
		Permission:   &manage,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Members.Applied)
	assert.Equal(t, 2, result.Members.Ignored)
	assert.Equal(t, 1, result.Groups.Applied)
	assert.Equal(t, 0, result.Groups.Ignored)
	assert.Equal(t, 2, result.Total())

	collaborators, err := svc.ListCollaborators(ctx, perm.ResourceApp, 7)
	require.NoError(t, err)
	require.Len(t, collaborators, 2)
	for _, c := range collaborators {
		assert.Equal(t, perm.ManagePermission, c.Permission)
	}
}

func TestService_UpdateCollaboratorsMerge(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newTestService(db, nil)

	alice := insertMember(t, db, 1, "alice", team.StatusActive)
	bob := insertMember(t, db, 1, "bob", team.StatusActive)

	write := perm.WritePermission
	_, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
		Members: entries(alice), Permission: &write,
	})
	require.NoError(t, err)

	// A later batch for bob leaves alice's grant untouched.
	_, err = svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
		Members: entries(bob),
	})
	require.NoError(t, err)

	collaborators, err := svc.ListCollaborators(ctx, perm.ResourceApp, 7)
	require.NoError(t, err)
	require.Len(t, collaborators, 2)

	byID := map[int64]perm.Bitmask{}
	for _, c := range collaborators {
		byID[c.ID] = c.Permission
	}
	assert.Equal(t, perm.WritePermission, byID[alice])
	// Omitted permission falls back to the default.
	assert.Equal(t, perm.DefaultPermission, byID[bob])
}

func TestService_UpdateCollaboratorsEntryOverride(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newTestService(db, nil)

	alice := insertMember(t, db, 1, "alice", team.StatusActive)
	bob := insertMember(t, db, 1, "bob", team.StatusActive)
	carol := insertMember(t, db, 1, "carol", team.StatusActive)

	// alice carries her own permission; bob takes the batch default;
	// carol takes the explicit batch permission.
	manage := perm.ManagePermission
	write := perm.WritePermission
	_, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
		Members: []Entry{
			{ID: alice, Permission: &manage},
			{ID: bob},
		},
	})
	require.NoError(t, err)
	_, err = svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
		Members:    []Entry{{ID: carol}},
		Permission: &write,
	})
	require.NoError(t, err)

	collaborators, err := svc.ListCollaborators(ctx, perm.ResourceApp, 7)
	require.NoError(t, err)
	require.Len(t, collaborators, 3)

	byID := map[int64]perm.Bitmask{}
	for _, c := range collaborators {
		byID[c.ID] = c.Permission
	}
	assert.Equal(t, perm.ManagePermission, byID[alice])
	assert.Equal(t, perm.DefaultPermission, byID[bob])
	assert.Equal(t, perm.WritePermission, byID[carol])
}

func TestEntry_UnmarshalJSON(t *testing.T) {
	var req UpdateRequest
	payload := `{"members": [{"id": 2, "permission": 7}, 3], "orgs": [5]}`
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	require.Len(t, req.Members, 2)
	assert.Equal(t, int64(2), req.Members[0].ID)
	require.NotNil(t, req.Members[0].Permission)
	assert.Equal(t, perm.ManagePermission, *req.Members[0].Permission)

	// Bare ids still parse, with no override attached.
	assert.Equal(t, int64(3), req.Members[1].ID)
	assert.Nil(t, req.Members[1].Permission)
	require.Len(t, req.Orgs, 1)
	assert.Equal(t, int64(5), req.Orgs[0].ID)
}

func TestService_UpdateCollaboratorsValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newTestService(db, nil)

	_, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: "widget", ResourceID: 7, Members: entries(1),
	})
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)

	_, err = svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
	})
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)

	// An empty non-nil list is a valid request that applies nothing.
	result, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7, Members: []Entry{},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total())
}

func TestService_DeleteCollaborator(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := newTestService(db, nil)

	alice := insertMember(t, db, 1, "alice", team.StatusActive)

	_, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7, Members: entries(alice),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCollaborator(ctx, perm.ResourceApp, 7, perm.MemberPrincipal(alice)))

	err = svc.DeleteCollaborator(ctx, perm.ResourceApp, 7, perm.MemberPrincipal(alice))
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)
}

func TestService_ListCollaboratorsPlaceholder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	alice := insertMember(t, db, 1, "alice", team.StatusActive)
	bob := insertMember(t, db, 1, "bob", team.StatusActive)

	lookup := &fakeLookup{displays: map[perm.Principal]directory.Display{
		perm.MemberPrincipal(alice): {Name: "Alice", Avatar: "a.png"},
	}}
	svc := newTestService(db, lookup)

	_, err := svc.UpdateCollaborators(ctx, UpdateRequest{
		TeamID: 1, ResourceType: perm.ResourceApp, ResourceID: 7,
		Members: entries(alice, bob),
	})
	require.NoError(t, err)

	collaborators, err := svc.ListCollaborators(ctx, perm.ResourceApp, 7)
	require.NoError(t, err)
	require.Len(t, collaborators, 2)

	byID := map[int64]Collaborator{}
	for _, c := range collaborators {
		byID[c.ID] = c
	}
	assert.Equal(t, "Alice", byID[alice].Name)
	assert.Equal(t, "a.png", byID[alice].Avatar)
	// A failed lookup degrades to a placeholder instead of failing the list.
	assert.Equal(t, "Unknown", byID[bob].Name)
}
