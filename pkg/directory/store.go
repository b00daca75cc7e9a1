package directory

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/perm"
)

// StoreLookup resolves display information straight from the database
type StoreLookup struct {
	db *sql.DB
}

// NewStoreLookup creates a database-backed display lookup
func NewStoreLookup(db *sql.DB) *StoreLookup {
	return &StoreLookup{db: db}
}

// Display resolves the name and avatar for a principal. Returns a
// trace.NotFound error when the principal no longer exists.
func (l *StoreLookup) Display(ctx context.Context, p perm.Principal) (Display, error) {
	if p.IsZero() {
		return Display{}, trace.BadParameter("principal is required")
	}

	var query string
	switch p.Kind() {
	case perm.KindMember:
		query = `SELECT name, COALESCE(avatar, '') FROM team_members WHERE id = $1`
	case perm.KindGroup:
		query = `SELECT name, COALESCE(avatar, '') FROM member_groups WHERE id = $1`
	case perm.KindOrg:
		query = `SELECT name, COALESCE(avatar, '') FROM org_nodes WHERE id = $1`
	default:
		return Display{}, trace.BadParameter("unknown principal kind %q", p.Kind())
	}

	var d Display
	err := l.db.QueryRowContext(ctx, query, p.ID()).Scan(&d.Name, &d.Avatar)
	if err == sql.ErrNoRows {
		return Display{}, trace.NotFound("%s %d not found", p.Kind(), p.ID())
	}
	if err != nil {
		return Display{}, trace.Wrap(err)
	}
	return d, nil
}
