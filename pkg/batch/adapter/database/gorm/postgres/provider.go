// Package postgres registers the PostgreSQL dialect with the gorm adapter.
package postgres

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
)

// DriverName is the database/sql driver registered by pgx's stdlib package.
const DriverName = "pgx"

func init() {
	gormadapter.RegisterDialect("postgres", gormadapter.Dialect{
		DriverName: DriverName,
		DSN:        ConnectionString,
		Dialector: func(dsn string, conn gorm.ConnPool) gorm.Dialector {
			return postgres.New(postgres.Config{DSN: dsn, Conn: conn})
		},
	})
}

// ConnectionString builds a key/value PostgreSQL DSN from c.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Database == "" {
		return "", errors.New("PostgreSQL host and database are required")
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn, nil
}
