package team

import (
	"context"
	"database/sql"
	"testing"

	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

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
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *sql.DB, name string) int64 {
	var id int64
	if err := db.QueryRow(`INSERT INTO users (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

func TestStore_CreateTeam(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	userID := createUser(t, db, "alice")
	tm, owner, err := store.CreateTeam(ctx, "engineering", userID, "alice")
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}
	if tm.ID == 0 {
		t.Error("Expected team ID to be set")
	}
	if owner.Role != RoleOwner {
		t.Errorf("Expected owner role, got %s", owner.Role)
	}
	if owner.Status != StatusActive {
		t.Errorf("Expected active status, got %s", owner.Status)
	}

	got, err := store.Owner(ctx, tm.ID)
	if err != nil {
		t.Fatalf("Owner failed: %v", err)
	}
	if got.ID != owner.ID {
		t.Errorf("Expected owner %d, got %d", owner.ID, got.ID)
	}
}

func TestStore_CreateTeamEmptyName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)
	_, _, err := store.CreateTeam(context.Background(), "", 1, "alice")
	if !trace.IsBadParameter(err) {
		t.Errorf("Expected BadParameter, got %v", err)
	}
}

func TestStore_AddMember(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	ownerUser := createUser(t, db, "alice")
	tm, _, err := store.CreateTeam(ctx, "engineering", ownerUser, "alice")
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}

	bobUser := createUser(t, db, "bob")
	m, err := store.AddMember(ctx, tm.ID, bobUser, "bob", RoleMember)
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if m.ID == 0 {
		t.Error("Expected member ID to be set")
	}

	// Re-adding the same user is a conflict.
	_, err = store.AddMember(ctx, tm.ID, bobUser, "bob", RoleMember)
	if !trace.IsAlreadyExists(err) {
		t.Errorf("Expected AlreadyExists, got %v", err)
	}

	// Owners are never added directly.
	_, err = store.AddMember(ctx, tm.ID, createUser(t, db, "carol"), "carol", RoleOwner)
	if !trace.IsBadParameter(err) {
		t.Errorf("Expected BadParameter for owner role, got %v", err)
	}
}

func TestStore_ListMembersStatusFilter(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	tm, _, err := store.CreateTeam(ctx, "engineering", createUser(t, db, "alice"), "alice")
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}
	bob, err := store.AddMember(ctx, tm.ID, createUser(t, db, "bob"), "bob", RoleMember)
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := store.SetMemberStatus(ctx, bob.ID, StatusForbidden); err != nil {
		t.Fatalf("SetMemberStatus failed: %v", err)
	}

	all, err := store.ListMembers(ctx, tm.ID, "")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 members, got %d", len(all))
	}

	active, err := store.ListMembers(ctx, tm.ID, StatusActive)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active member, got %d", len(active))
	}
}

func TestStore_UpdateMemberName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	tm, owner, err := store.CreateTeam(ctx, "engineering", createUser(t, db, "alice"), "alice")
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}
	_ = tm

	if err := store.UpdateMemberName(ctx, owner.ID, "alice2"); err != nil {
		t.Fatalf("UpdateMemberName failed: %v", err)
	}
	got, err := store.GetMember(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if got.Name != "alice2" {
		t.Errorf("Expected renamed member, got %s", got.Name)
	}

	if err := store.UpdateMemberName(ctx, 9999, "nobody"); !trace.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if err := store.UpdateMemberName(ctx, owner.ID, ""); !trace.IsBadParameter(err) {
		t.Errorf("Expected BadParameter for empty name, got %v", err)
	}
}

func TestStore_DeleteMemberAndUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	tm, _, err := store.CreateTeam(ctx, "engineering", createUser(t, db, "alice"), "alice")
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}
	bobUser := createUser(t, db, "bob")
	bob, err := store.AddMember(ctx, tm.ID, bobUser, "bob", RoleMember)
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := store.DeleteMemberAndUser(ctx, bob.ID); err != nil {
		t.Fatalf("DeleteMemberAndUser failed: %v", err)
	}

	if _, err := store.GetMember(ctx, bob.ID); !trace.IsNotFound(err) {
		t.Errorf("Expected NotFound after deletion, got %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(1) FROM users WHERE id = $1`, bobUser).Scan(&count); err != nil {
		t.Fatalf("Failed to count users: %v", err)
	}
	if count != 0 {
		t.Error("Expected backing user account to be removed")
	}
}
