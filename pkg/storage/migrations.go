package storage

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"
)

// Migration represents a single schema migration belonging to one package
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Set groups one package's migrations under its tracking name
type Set struct {
	Package    string
	Migrations []Migration
}

// RunMigrations applies migration sets in order. Each set is tracked under
// its own name in schema_migrations so packages version independently; set
// order matters because later packages reference earlier tables.
func RunMigrations(ctx context.Context, db *sql.DB, sets []Set) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			package VARCHAR(100) NOT NULL,
			version INT NOT NULL,
			description TEXT,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (package, version)
		)
	`)
	if err != nil {
		return trace.Wrap(err, "failed to create schema_migrations table")
	}

	for _, set := range sets {
		pkg := set.Package
		for _, m := range set.Migrations {
			applied, err := migrationApplied(ctx, db, pkg, m.Version)
			if err != nil {
				return trace.Wrap(err)
			}
			if applied {
				continue
			}

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return trace.Wrap(err, "failed to begin migration transaction")
			}
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				tx.Rollback()
				return trace.Wrap(err, "migration %s/%d (%s) failed", pkg, m.Version, m.Description)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (package, version, description) VALUES ($1, $2, $3)`,
				pkg, m.Version, m.Description,
			); err != nil {
				tx.Rollback()
				return trace.Wrap(err, "failed to record migration %s/%d", pkg, m.Version)
			}
			if err := tx.Commit(); err != nil {
				return trace.Wrap(err, "failed to commit migration %s/%d", pkg, m.Version)
			}
		}
	}
	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, pkg string, version int) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM schema_migrations WHERE package = $1 AND version = $2`,
		pkg, version,
	).Scan(&count)
	if err != nil {
		return false, trace.Wrap(err, "failed to check migration state")
	}
	return count > 0, nil
}
