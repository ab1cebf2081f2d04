package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/bookbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// NewGormLogger creates a gorm logger whose verbosity follows the framework log level.
// GORM's own statement trace is only emitted at DEBUG.
func NewGormLogger(level logger.LogLevel) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch level {
	case logger.LevelDebug:
		gormLevel = gorm_logger.Info
	case logger.LevelInfo, logger.LevelWarn:
		gormLevel = gorm_logger.Warn
	case logger.LevelError:
		gormLevel = gorm_logger.Error
	default:
		gormLevel = gorm_logger.Silent
	}

	return gorm_logger.New(
		NewGormWriter(),
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the framework logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gorm_logger.Writer.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatementTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Warnf("[GORM] %s", msg)
}

func isStatementTrace(msg string) bool {
	if !strings.Contains(msg, "[") || !strings.Contains(msg, "]") {
		return false
	}
	upper := strings.ToUpper(msg)
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE"} {
		if strings.Contains(upper, verb) {
			return true
		}
	}
	return false
}

// GormDBAdapter implements database.DBConnection on top of a *gorm.DB.
type GormDBAdapter struct {
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

// NewGormDBAdapter wraps db as a named connection.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormDBAdapter {
	return &GormDBAdapter{db: db, cfg: cfg, name: name}
}

// GetGormDB returns the underlying *gorm.DB.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

// Type implements database.DBConnection.
func (a *GormDBAdapter) Type() string {
	return a.cfg.Type
}

// Name implements database.DBConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	return a.db.DB()
}

// OpenSQLDB implements database.DBConnection.
func (a *GormDBAdapter) OpenSQLDB() (*sql.DB, error) {
	return OpenSQLDB(a.cfg)
}

// ExecuteQuery implements database.DBConnection.
func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, statement string, args ...interface{}) error {
	return a.db.WithContext(ctx).Raw(statement, args...).Scan(target).Error
}

// IsTableNotExistError implements database.DBConnection.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return IsTableNotExistError(err)
}

// Close implements database.DBConnection.
func (a *GormDBAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	logger.Debugf("Closing DB connection: %s", a.name)
	return sqlDB.Close()
}

// IsTableNotExistError reports whether err is the "missing table" error of a supported database.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return (strings.Contains(errMsg, "relation \"") && strings.Contains(errMsg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(errMsg, "Error 1146") && strings.Contains(errMsg, "doesn't exist")) || // MySQL
		strings.Contains(errMsg, "no such table:") // SQLite
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
