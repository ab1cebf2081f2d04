// Package migration applies versioned SQL migrations with golang-migrate as a tasklet step.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	dbadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// DefaultMigrationsTable is the version table golang-migrate maintains.
const DefaultMigrationsTable = "schema_migrations"

// Migrator applies migrations found in a file system.
type Migrator interface {
	// Up applies all pending migrations in dir of migrationFS. Having nothing to apply is not an error.
	Up(ctx context.Context, migrationFS fs.FS, dir string, tableName string) error
}

// migratorImpl implements Migrator
type migratorImpl struct {
	dbConn dbadapter.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(dbConn dbadapter.DBConnection) Migrator {
	return &migratorImpl{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// getDatabaseDriver retrieves a migrate/v4 Driver based on the database type.
func (m *migratorImpl) getDatabaseDriver(sqlDB *sql.DB, tableName string) (database.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, dir string, tableName string) error {
	logger.Infof("Executing migration 'up' (Path: %s, Table: %s)", dir, tableName)

	// golang-migrate closes the pool it is given, so it gets its own.
	sqlDB, err := m.dbConn.OpenSQLDB()
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, dir)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", dir, err)
	}

	dbDriver, err := m.getDatabaseDriver(sqlDB, tableName)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("Failed to close migrate instance: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", m.dbType, dir, err)
	}

	version, dirty, err := mInstance.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Warnf("Migration applied but the version could not be read: %v", err)
	} else {
		logger.Infof("Migration 'up' completed successfully (version=%d, dirty=%t).", version, dirty)
	}
	return nil
}
