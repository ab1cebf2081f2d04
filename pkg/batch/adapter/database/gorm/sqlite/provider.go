// Package sqlite registers the SQLite dialect with the gorm adapter.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
)

// DriverName is the database/sql driver registered by github.com/mattn/go-sqlite3.
const DriverName = "sqlite3"

func init() {
	gormadapter.RegisterDialect("sqlite", gormadapter.Dialect{
		DriverName: DriverName,
		DSN:        ConnectionString,
		Dialector: func(dsn string, conn gorm.ConnPool) gorm.Dialector {
			return &sqlite.Dialector{DriverName: DriverName, DSN: dsn, Conn: conn}
		},
	})
}

// ConnectionString returns the SQLite file path. go-sqlite3 accepts it as the DSN.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Database == "" {
		return "", errors.New("SQLite database path cannot be empty")
	}
	return c.Database, nil
}
