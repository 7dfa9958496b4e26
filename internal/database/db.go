package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL with pgvector
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// New creates a new PostgreSQL connection
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if !strings.HasPrefix(databaseURL, "postgres") {
		return nil, fmt.Errorf("DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ExecuteReadOnlyQuery executes a query within a read-only transaction
func ExecuteReadOnlyQuery(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // never committed

	if err := tx.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}

// ExecuteReadOnlyQuerySingle executes a single-row query within a read-only transaction.
// sql.ErrNoRows is translated to ErrNotFound.
func ExecuteReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // never committed

	if err := tx.GetContext(ctx, dest, query, args...); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}

// ExecuteReadOnlyPing executes a ping within a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var result int
	if err := tx.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}

	return nil
}
