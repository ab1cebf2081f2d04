package tx

import (
	"database/sql"
	"fmt"
)

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"DEFAULT":          sql.LevelDefault,
	"READ_UNCOMMITTED": sql.LevelReadUncommitted,
	"READ_COMMITTED":   sql.LevelReadCommitted,
	"WRITE_COMMITTED":  sql.LevelWriteCommitted,
	"REPEATABLE_READ":  sql.LevelRepeatableRead,
	"SNAPSHOT":         sql.LevelSnapshot,
	"SERIALIZABLE":     sql.LevelSerializable,
	"LINEARIZABLE":     sql.LevelLinearizable,
}

// ParseIsolationLevel converts a configuration string such as "READ_COMMITTED" to
// sql.IsolationLevel. An empty string is the driver default.
func ParseIsolationLevel(level string) (sql.IsolationLevel, error) {
	l, ok := isolationLevels[level]
	if !ok {
		return sql.LevelDefault, fmt.Errorf("unknown isolation level: %q", level)
	}
	return l, nil
}
