// Package config provides structures and utilities for managing application configuration.
package config

import (
	dbconfig "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/bookbatch/pkg/batch/infrastructure/metrics"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Supported values of BatchConfig.JobRepository.
const (
	JobRepositoryInMemory = "inmemory"
	JobRepositorySQL      = "sql"
)

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// JobName is the name the job is registered and reported under.
	JobName string `yaml:"job_name"`
	// ChunkSize is the commit interval of chunk-oriented steps.
	ChunkSize int `yaml:"chunk_size"`
	// MaxTaskletIterations bounds how often a CONTINUABLE tasklet is re-invoked.
	MaxTaskletIterations int `yaml:"max_tasklet_iterations"`
	// JobRepository selects where execution metadata is kept: "inmemory" or "sql".
	JobRepository string `yaml:"job_repository"`
	// IsolationLevel of the chunk transactions (e.g. "READ_COMMITTED"). Empty means the driver default.
	IsolationLevel string `yaml:"isolation_level"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig enables the Prometheus recorder.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	// Address, when set, serves /metrics (e.g. ":9090") while the job runs.
	Address string `yaml:"address"`
}

// ObservabilityConfig groups the metrics and tracing settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig      `yaml:"metrics"`
	OTLP    metrics.OTLPConfig `yaml:"otlp"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch         BatchConfig             `yaml:"batch"`
	System        SystemConfig            `yaml:"system"`
	Database      dbconfig.DatabaseConfig `yaml:"database"`
	Observability ObservabilityConfig     `yaml:"observability"`
}

// InputConfig locates the XML source.
type InputConfig struct {
	Path     string `yaml:"path"`
	Fragment string `yaml:"fragment"`
}

// OutputConfig locates the delimited file sink.
type OutputConfig struct {
	Path           string `yaml:"path"`
	Delimiter      string `yaml:"delimiter"`
	DeleteIfExists bool   `yaml:"delete_if_exists"`
	// Properties carries optional writer settings bound by configbinder (e.g. line_separator).
	Properties map[string]interface{} `yaml:"properties"`
}

// MigrationConfig controls the schema migration step.
type MigrationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AppConfig holds the settings of the book job under the "app" top-level key.
type AppConfig struct {
	// Message is printed by the first step of the job.
	Message   string          `yaml:"message"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Migration MigrationConfig `yaml:"migration"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	App    AppConfig    `yaml:"app"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
			},
			Batch: BatchConfig{
				JobName:              "simpleJob",
				ChunkSize:            10,
				MaxTaskletIterations: 1000,
				JobRepository:        JobRepositoryInMemory,
			},
			Database: dbconfig.DatabaseConfig{
				Type:     "sqlite",
				Database: "/tmp/bookbatch.db",
			},
			Observability: ObservabilityConfig{
				Metrics: MetricsConfig{Namespace: "bookbatch"},
				OTLP:    metrics.OTLPConfig{Protocol: "http", ServiceName: "bookbatch"},
			},
		},
		App: AppConfig{
			Message: "Hello, batch!",
			Input:   InputConfig{Path: "resources/books.xml", Fragment: "book"},
			Output: OutputConfig{
				Path:           "/tmp/books.csv",
				Delimiter:      ";",
				DeleteIfExists: true,
			},
			Migration: MigrationConfig{Enabled: true},
		},
	}
}
