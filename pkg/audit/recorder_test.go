package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			owner_member_id INTEGER NOT NULL,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);
	`)
	require.NoError(t, err)
	return db
}

func TestRecorder_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	recorder := NewRecorder(db)

	require.NoError(t, recorder.Record(ctx, Entry{
		TeamID: 1, ActorMemberID: 10, Event: EventMemberRemove,
		Detail: map[string]interface{}{"target": float64(11)},
	}))
	require.NoError(t, recorder.Record(ctx, Entry{
		TeamID: 1, ActorMemberID: 10, Event: EventMemberRestore,
	}))
	require.NoError(t, recorder.Record(ctx, Entry{
		TeamID: 2, ActorMemberID: 20, Event: EventMemberLeave,
	}))

	entries, err := recorder.ListForTeam(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, EventMemberRestore, entries[0].Event)
	assert.Nil(t, entries[0].Detail)
	assert.Equal(t, EventMemberRemove, entries[1].Event)
	assert.Equal(t, map[string]interface{}{"target": float64(11)}, entries[1].Detail)
}

func TestRecorder_RecordValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	recorder := NewRecorder(db)
	err := recorder.Record(context.Background(), Entry{TeamID: 1, ActorMemberID: 10})
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)
}

func TestRecorder_ListLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	recorder := NewRecorder(db)
	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.Record(ctx, Entry{TeamID: 1, ActorMemberID: 10, Event: EventMemberLeave}))
	}

	entries, err := recorder.ListForTeam(ctx, 1, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecorder_RecordWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

	recorder := NewRecorder(db)
	err = recorder.Record(context.Background(), Entry{TeamID: 1, ActorMemberID: 10, Event: EventMemberLeave})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record audit entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}
