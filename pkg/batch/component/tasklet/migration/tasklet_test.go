package migration_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/bookbatch/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
)

var bookSchema = fstest.MapFS{
	"sqlite/000001_create_book.up.sql":   {Data: []byte("CREATE TABLE book (title TEXT, year INTEGER);")},
	"sqlite/000001_create_book.down.sql": {Data: []byte("DROP TABLE book;")},
}

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Up(ctx context.Context, migrationFS fs.FS, dir string, tableName string) error {
	return m.Called(ctx, migrationFS, dir, tableName).Error(0)
}

func openSQLite(t *testing.T) *gormadapter.GormDBAdapter {
	t.Helper()
	conn, err := gormadapter.Open("app", dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "books.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrationTasklet_CreatesTable(t *testing.T) {
	conn := openSQLite(t)
	tasklet := migration.NewMigrationTasklet(conn, bookSchema)
	se := model.NewStepExecution(model.NewID(), model.NewJobExecution("job", model.NewJobParameters()), "migrate")

	status, err := tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.RepeatStatusFinished, status)
	applied, _ := se.ExecutionContext.Get("migration.applied")
	assert.Equal(t, true, applied)

	// The shared pool is still usable and the table exists.
	var rows []struct{ Title string }
	require.NoError(t, conn.ExecuteQuery(context.Background(), &rows, "SELECT title FROM book"))
	assert.Empty(t, rows)

	// A second run has nothing to apply.
	_, err = tasklet.Execute(context.Background(), se)
	assert.NoError(t, err)
}

func TestMigrationTasklet_MissingDirectory(t *testing.T) {
	conn := openSQLite(t)
	tasklet := migration.NewMigrationTasklet(conn, bookSchema, migration.WithDirectory("postgres"))
	se := model.NewStepExecution(model.NewID(), nil, "migrate")

	_, err := tasklet.Execute(context.Background(), se)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration_tasklet")
}

func TestMigrationTasklet_UsesConfiguredMigrator(t *testing.T) {
	conn := openSQLite(t)
	m := &mockMigrator{}
	m.On("Up", mock.Anything, bookSchema, "sqlite", "book_migrations").Return(errors.New("locked"))

	tasklet := migration.NewMigrationTasklet(conn, bookSchema,
		migration.WithMigrator(m), migration.WithMigrationsTable("book_migrations"))
	_, err := tasklet.Execute(context.Background(), model.NewStepExecution(model.NewID(), nil, "migrate"))

	require.Error(t, err)
	assert.ErrorContains(t, err, "locked")
	m.AssertExpectations(t)
	assert.NoError(t, tasklet.Close(context.Background()))
}
