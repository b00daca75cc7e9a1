package resources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gravitational/trace"
)

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Collection describes one table holding member-owned rows. Departure
// processing walks the registry and points each collection's owner
// column at the team owner.
type Collection struct {
	Name        string
	table       string
	ownerColumn string
	teamColumn  string
}

// NewCollection creates a team-scoped collection
func NewCollection(name, table, ownerColumn, teamColumn string) Collection {
	return Collection{Name: name, table: table, ownerColumn: ownerColumn, teamColumn: teamColumn}
}

// NewUnscopedCollection creates a collection whose reassignment matches
// on the owner column alone, with no team filter.
func NewUnscopedCollection(name, table, ownerColumn string) Collection {
	return Collection{Name: name, table: table, ownerColumn: ownerColumn}
}

// Scoped reports whether reassignment is filtered by team
func (c Collection) Scoped() bool {
	return c.teamColumn != ""
}

// ReassignOwner moves every row owned by fromMember to toMember and
// returns the number of rows moved.
func (c Collection) ReassignOwner(ctx context.Context, q Execer, teamID, fromMember, toMember int64) (int64, error) {
	var (
		query string
		args  []interface{}
	)
	if c.Scoped() {
		query = fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2 AND %s = $3`,
			c.table, c.ownerColumn, c.ownerColumn, c.teamColumn)
		args = []interface{}{toMember, fromMember, teamID}
	} else {
		query = fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`,
			c.table, c.ownerColumn, c.ownerColumn)
		args = []interface{}{toMember, fromMember}
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return moved, nil
}

