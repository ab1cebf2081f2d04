package migration

import (
	"context"
	"io/fs"

	dbadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
)

const taskletName = "migration_tasklet"

// ExecutionContext key set once the migrations were applied.
const appliedKey = "migration.applied"

// MigrationTasklet applies the migrations of one fs.FS to one database connection.
// The directory defaults to the database type, so a single FS can hold a schema per database.
type MigrationTasklet struct {
	migrator    Migrator
	migrationFS fs.FS
	dir         string
	tableName   string
}

// Option configures a MigrationTasklet.
type Option func(*MigrationTasklet)

// WithDirectory overrides the migration directory within the FS.
func WithDirectory(dir string) Option {
	return func(t *MigrationTasklet) { t.dir = dir }
}

// WithMigrationsTable overrides the golang-migrate version table name.
func WithMigrationsTable(name string) Option {
	return func(t *MigrationTasklet) { t.tableName = name }
}

// WithMigrator replaces the golang-migrate backed Migrator.
func WithMigrator(m Migrator) Option {
	return func(t *MigrationTasklet) { t.migrator = m }
}

// NewMigrationTasklet creates a tasklet migrating conn with the scripts in migrationFS.
func NewMigrationTasklet(conn dbadapter.DBConnection, migrationFS fs.FS, opts ...Option) *MigrationTasklet {
	t := &MigrationTasklet{
		migrationFS: migrationFS,
		dir:         conn.Type(),
		tableName:   DefaultMigrationsTable,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.migrator == nil {
		t.migrator = NewMigrator(conn)
	}
	return t
}

// Execute implements port.Tasklet.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.RepeatStatus, error) {
	if err := t.migrator.Up(ctx, t.migrationFS, t.dir, t.tableName); err != nil {
		return model.RepeatStatusFinished, exception.NewBatchError(taskletName, "failed to apply migrations", err, false, false)
	}
	stepExecution.ExecutionContext.Put(appliedKey, true)
	return model.RepeatStatusFinished, nil
}

// Close implements port.Tasklet.
func (t *MigrationTasklet) Close(ctx context.Context) error {
	return nil
}

var _ port.Tasklet = (*MigrationTasklet)(nil)
