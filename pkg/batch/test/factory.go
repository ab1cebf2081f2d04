// Package test provides mocks, fakes and fixtures shared by the framework tests.
package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
)

// CreateTestDBConnection returns a gorm connection backed by go-sqlmock. The mock is checked
// for unmet expectations when the test ends.
func CreateTestDBConnection(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "test"), mock
}
