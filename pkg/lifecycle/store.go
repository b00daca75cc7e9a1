package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// DepartureStore persists departure resume points
type DepartureStore struct {
	db *sql.DB
}

// NewDepartureStore creates the store
func NewDepartureStore(db *sql.DB) *DepartureStore {
	return &DepartureStore{db: db}
}

// Create writes a fresh departure record in the running state
func (s *DepartureStore) Create(ctx context.Context, teamID, memberID, ownerMemberID int64, reason Reason) (*Departure, error) {
	now := time.Now().UTC()
	d := &Departure{
		ID:            uuid.New().String(),
		TeamID:        teamID,
		MemberID:      memberID,
		OwnerMemberID: ownerMemberID,
		Reason:        reason,
		Step:          StepResolveOwner,
		Status:        DepartureRunning,
		Counts:        Counts{Reassigned: make(map[string]int64)},
		Attempts:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	counts, err := json.Marshal(d.Counts)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO member_departures (id, team_id, member_id, owner_member_id, reason, step, status, counts, error, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10, $11)`,
		d.ID, d.TeamID, d.MemberID, d.OwnerMemberID, d.Reason, d.Step, d.Status, string(counts), d.Attempts, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return d, nil
}

// Update persists the step, status, counts and error of a departure
func (s *DepartureStore) Update(ctx context.Context, d *Departure) error {
	counts, err := json.Marshal(d.Counts)
	if err != nil {
		return trace.Wrap(err)
	}

	d.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE member_departures
		SET step = $1, status = $2, counts = $3, error = $4, attempts = $5, updated_at = $6
		WHERE id = $7`,
		d.Step, d.Status, string(counts), d.Error, d.Attempts, d.UpdatedAt, d.ID)
	if err != nil {
		return trace.Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return trace.Wrap(err)
	}
	if n == 0 {
		return trace.NotFound("departure %s not found", d.ID)
	}
	return nil
}

// Get fetches one departure record
func (s *DepartureStore) Get(ctx context.Context, id string) (*Departure, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, member_id, owner_member_id, reason, step, status, counts, error, attempts, created_at, updated_at
		FROM member_departures WHERE id = $1`, id)
	d, err := scanDeparture(row)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("departure %s not found", id)
	}
	return d, trace.Wrap(err)
}

// ListFailed returns failed departures oldest first, up to limit
func (s *DepartureStore) ListFailed(ctx context.Context, limit int) ([]Departure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, member_id, owner_member_id, reason, step, status, counts, error, attempts, created_at, updated_at
		FROM member_departures WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		DepartureFailed, limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var departures []Departure
	for rows.Next() {
		d, err := scanDeparture(rows)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		departures = append(departures, *d)
	}
	return departures, trace.Wrap(rows.Err())
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeparture(row scanner) (*Departure, error) {
	var (
		d      Departure
		counts string
	)
	err := row.Scan(&d.ID, &d.TeamID, &d.MemberID, &d.OwnerMemberID, &d.Reason, &d.Step, &d.Status, &counts, &d.Error, &d.Attempts, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(counts), &d.Counts); err != nil {
		return nil, trace.Wrap(err)
	}
	if d.Counts.Reassigned == nil {
		d.Counts.Reassigned = make(map[string]int64)
	}
	return &d, nil
}
