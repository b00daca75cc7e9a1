// Package audit records who did what to the team. Entries land in the
// audit_logs table, which departure processing reassigns along with the
// rest of a member's rows.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gravitational/trace"
)

// Event names recorded by the services.
const (
	EventMemberLeave     = "member.leave"
	EventMemberRemove    = "member.remove"
	EventMemberRestore   = "member.restore"
	EventMemberDelete    = "member.delete"
	EventAppChangeOwner  = "app.change_owner"
	EventTeamChangeOwner = "team.change_owner"
)

// Entry is one recorded action
type Entry struct {
	ID            int64                  `json:"id"`
	TeamID        int64                  `json:"teamId"`
	ActorMemberID int64                  `json:"actorMemberId"`
	Event         string                 `json:"event"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Recorder writes audit entries
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a database-backed audit recorder
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record persists one entry. Callers treat failures as log-and-continue;
// an audit write must never fail the operation it describes.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.Event == "" {
		return trace.BadParameter("audit event name is required")
	}

	detail := "{}"
	if e.Detail != nil {
		payload, err := json.Marshal(e.Detail)
		if err != nil {
			return trace.Wrap(err, "failed to marshal audit detail")
		}
		detail = string(payload)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (team_id, owner_member_id, event, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.TeamID, e.ActorMemberID, e.Event, detail, time.Now().UTC(),
	)
	return trace.Wrap(err, "failed to record audit entry")
}

// ListForTeam returns a team's entries newest first, up to limit
func (r *Recorder) ListForTeam(ctx context.Context, teamID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, team_id, owner_member_id, event, detail, created_at
		 FROM audit_logs WHERE team_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		teamID, limit,
	)
	if err != nil {
		return nil, trace.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			detail string
		)
		if err := rows.Scan(&e.ID, &e.TeamID, &e.ActorMemberID, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, trace.Wrap(err, "failed to scan audit entry")
		}
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
				return nil, trace.Wrap(err, "failed to decode audit detail")
			}
		}
		entries = append(entries, e)
	}
	return entries, trace.Wrap(rows.Err())
}
