// Package gorm opens gorm-backed database connections and provides the GORM
// implementation of tx.TransactionManager.
// Database types are registered by the dialect subpackages (sqlite, mysql, postgres),
// which must be imported for their side effects.
package gorm

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

const moduleName = "database"

// Dialect describes how to reach one database type.
type Dialect struct {
	// DriverName is the database/sql driver name (e.g., "sqlite3", "mysql", "pgx").
	DriverName string
	// DSN builds the data source name from the configuration.
	DSN func(cfg dbconfig.DatabaseConfig) (string, error)
	// Dialector wraps an already opened connection pool for gorm.
	Dialector func(dsn string, conn gorm.ConnPool) gorm.Dialector
}

var (
	dialectRegistry = make(map[string]Dialect)
	dialectMutex    sync.RWMutex
)

// RegisterDialect registers a Dialect for the given database type.
func RegisterDialect(dbType string, d Dialect) {
	dialectMutex.Lock()
	defer dialectMutex.Unlock()
	if _, exists := dialectRegistry[dbType]; exists {
		logger.Warnf("Dialect for type '%s' already registered. Overwriting.", dbType)
	}
	dialectRegistry[dbType] = d
}

// GetDialect retrieves the Dialect registered for dbType.
func GetDialect(dbType string) (Dialect, error) {
	dialectMutex.RLock()
	defer dialectMutex.RUnlock()
	d, ok := dialectRegistry[dbType]
	if !ok {
		return Dialect{}, fmt.Errorf("no dialect registered for database type: %s", dbType)
	}
	return d, nil
}

// Open establishes a connection described by cfg and returns it as a GormDBAdapter.
// When cfg.LogSQL is set every statement is logged through the package logger.
func Open(name string, cfg dbconfig.DatabaseConfig) (*GormDBAdapter, error) {
	dialect, err := GetDialect(cfg.Type)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to resolve dialect", err, false, false)
	}
	dsn, err := dialect.DSN(cfg)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("invalid configuration for '%s'", name), err, false, false)
	}

	sqlDB, err := openPool(dialect.DriverName, dsn, cfg.LogSQL)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to open connection '%s'", name), err, false, true)
	}
	applyPool(sqlDB, cfg.Pool)

	db, err := gorm.Open(dialect.Dialector(dsn, sqlDB), &gorm.Config{
		Logger:                 NewGormLogger(logger.GetLogLevel()),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to open GORM connection '%s'", name), err, false, true)
	}
	logger.Infof("Established new DB connection: %s (%s)", name, cfg.Type)
	return NewGormDBAdapter(db, cfg, name), nil
}

// OpenSQLDB opens a new database/sql pool for cfg without gorm. The caller owns and closes it.
func OpenSQLDB(cfg dbconfig.DatabaseConfig) (*sql.DB, error) {
	dialect, err := GetDialect(cfg.Type)
	if err != nil {
		return nil, err
	}
	dsn, err := dialect.DSN(cfg)
	if err != nil {
		return nil, err
	}
	return sql.Open(dialect.DriverName, dsn)
}

// openPool opens the pool for dsn. With logSQL the registered driver is served behind
// sqldb-logger and the lookup pool is closed, so exactly one pool stays open.
func openPool(driverName, dsn string, logSQL bool) (*sql.DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil || !logSQL {
		return sqlDB, err
	}
	drv := sqlDB.Driver()
	if err := sqlDB.Close(); err != nil {
		return nil, err
	}
	return withStatementLogger(drv, dsn, driverName), nil
}

// withStatementLogger opens drv behind sqldb-logger.
func withStatementLogger(drv driver.Driver, dsn, driverName string) *sql.DB {
	adapter := zerologadapter.New(logger.Logger().With().Str("driver", driverName).Logger())
	return sqldblogger.OpenDriver(dsn, drv, adapter,
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
	)
}

func applyPool(sqlDB *sql.DB, pool dbconfig.PoolConfig) {
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
}
