package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL with pgvector
)

// writeTimeout bounds every write issued through the client
const writeTimeout = 30 * time.Second

// WriteClient provides write access to the database
type WriteClient struct {
	db *sqlx.DB
}

// NewWriteClient creates a new write-enabled PostgreSQL client
func NewWriteClient(databaseURL string) (*WriteClient, error) {
	db, err := New(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database with write access: %w", err)
	}
	return &WriteClient{db: db}, nil
}

// NewWriteClientFromDB wraps an existing connection
func NewWriteClientFromDB(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// ExecuteWriteQuery executes a write query with a default timeout
func (wc *WriteClient) ExecuteWriteQuery(query string, args ...interface{}) (sql.Result, error) {
	return wc.ExecContext(context.Background(), query, args...)
}

// ExecContext executes a write query bound to ctx
func (wc *WriteClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wc.db.ExecContext(ctx, query, args...)
}

// GetContext executes a write query returning one row (e.g. RETURNING) and scans it into dest.
// sql.ErrNoRows is translated to ErrNotFound.
func (wc *WriteClient) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := wc.db.GetContext(ctx, dest, query, args...); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// requireAffected returns ErrNotFound when a write touched no rows
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
