// Package database defines the database connection port used by readers, listeners and
// the migration tasklet.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
)

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	// Type returns the database type (e.g., "sqlite").
	Type() string
	// Name returns the logical connection name.
	Name() string
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig

	// ExecuteQuery executes a raw read (SELECT) outside of a managed transaction and scans
	// the rows into target, which must be a pointer to a slice of structs.
	ExecuteQuery(ctx context.Context, target interface{}, statement string, args ...interface{}) error

	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// OpenSQLDB opens a separate pool to the same database, for tools that close the
	// pool they are handed (such as golang-migrate). The caller closes it.
	OpenSQLDB() (*sql.DB, error)
	// Close closes the connection.
	Close() error
}
