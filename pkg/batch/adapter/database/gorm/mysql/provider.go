// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
)

func init() {
	gormadapter.RegisterDialect("mysql", gormadapter.Dialect{
		DriverName: "mysql",
		DSN:        ConnectionString,
		Dialector: func(dsn string, conn gorm.ConnPool) gorm.Dialector {
			return mysql.New(mysql.Config{DSN: dsn, Conn: conn})
		},
	})
}

// ConnectionString builds a go-sql-driver DSN from c.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Database == "" {
		return "", errors.New("MySQL host and database are required")
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc := gomysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.MultiStatements = true
	return mc.FormatDSN(), nil
}
