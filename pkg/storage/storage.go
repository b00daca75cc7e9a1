// Package storage manages the relational database connection and schema
// migrations shared by all teamcore stores.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/gravitational/trace"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds database connection configuration
type Config struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sane pool defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:    25,
		MinConns:    5,
		Timeout:     10 * time.Second,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// Connect opens and verifies a database connection with pooling configured
func Connect(cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, trace.BadParameter("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, trace.Wrap(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, trace.Wrap(err, "failed to ping database")
	}

	return db, nil
}
