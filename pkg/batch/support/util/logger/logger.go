// Package logger provides the leveled logging facade used across the batch framework.
// Messages are filtered by a global level and emitted through a zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
	// LevelSilent disables all output except fatal messages.
	LevelSilent
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	format   = "console"
	out      io.Writer = os.Stderr
	base               = newZerolog(out, format)
)

func newZerolog(w io.Writer, f string) zerolog.Logger {
	if f == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true}).With().Timestamp().Logger()
}

// SetLogLevel sets the global log level for the framework.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" and "SILENT" (case-insensitive).
// An unknown value falls back to INFO.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "TRACE", "DEBUG":
		logLevel = LevelDebug
	case "INFO":
		logLevel = LevelInfo
	case "WARN":
		logLevel = LevelWarn
	case "ERROR":
		logLevel = LevelError
	case "FATAL":
		logLevel = LevelFatal
	case "SILENT":
		logLevel = LevelSilent
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel = LevelInfo
	}
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// SetFormat switches the output encoding between "console" and "json".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = strings.ToLower(f)
	base = newZerolog(out, format)
}

// SetOutput redirects log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = newZerolog(out, format)
}

// Logger returns the underlying zerolog logger, for adapters that need structured access
// (for example the SQL statement logger).
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func emit(level LogLevel, format string, v ...interface{}) {
	mu.RLock()
	current, l := logLevel, base
	mu.RUnlock()
	if level < current {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.Debug()
	case LevelInfo:
		ev = l.Info()
	case LevelWarn:
		ev = l.Warn()
	case LevelError:
		ev = l.Error()
	default:
		ev = l.WithLevel(zerolog.FatalLevel)
	}
	ev.Msgf(format, v...)
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	emit(LevelDebug, format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	emit(LevelInfo, format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	emit(LevelWarn, format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	emit(LevelError, format, v...)
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}
