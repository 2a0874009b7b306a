// Package store persists canonical listing records in PostgreSQL and
// tracks their notification state.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database.
	DefaultMaxOpenConns = 10

	// DefaultMaxIdleConns is the maximum number of idle connections.
	DefaultMaxIdleConns = 2

	// DefaultConnMaxLifetime is the maximum lifetime of a connection.
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultPingTimeout is the timeout for the startup connectivity check.
	DefaultPingTimeout = 5 * time.Second
)

// NewPostgresConnection opens a pooled connection from a DSN
// (DATABASE_URL) and verifies connectivity.
func NewPostgresConnection(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}
