package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/pkg/batch/core/config"
)

const sampleYAML = `
surfin:
  batch:
    job_name: simpleJob
    chunk_size: 5
  database:
    type: sqlite
    database: ${BOOKBATCH_TEST_DIR}/books.db
app:
  message: Hello from YAML
  output:
    path: /tmp/out.csv
    delete_if_exists: false
    properties:
      line_separator: "\r\n"
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "simpleJob", cfg.Surfin.Batch.JobName)
	assert.Equal(t, "sqlite", cfg.Surfin.Database.Type)
	assert.Equal(t, "book", cfg.App.Input.Fragment)
	assert.Equal(t, ";", cfg.App.Output.Delimiter)
	assert.Equal(t, "/tmp/books.csv", cfg.App.Output.Path)
	assert.True(t, cfg.App.Output.DeleteIfExists)
	assert.Equal(t, config.JobRepositoryInMemory, cfg.Surfin.Batch.JobRepository)
}

func TestLoadConfig_YAMLAndExpansion(t *testing.T) {
	t.Setenv("BOOKBATCH_TEST_DIR", "/data")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "/data/books.db", cfg.Surfin.Database.Database)
	assert.Equal(t, "Hello from YAML", cfg.App.Message)
	assert.Equal(t, "/tmp/out.csv", cfg.App.Output.Path)
	assert.False(t, cfg.App.Output.DeleteIfExists, "an explicit false overrides the default")
	assert.Equal(t, ";", cfg.App.Output.Delimiter, "unspecified keys keep their defaults")
	assert.Equal(t, "\r\n", cfg.App.Output.Properties["line_separator"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SURFIN_BATCH_CHUNK_SIZE", "3")
	t.Setenv("APP_OUTPUT_PATH", "/var/out/books.csv")
	t.Setenv("APP_OUTPUT_DELETE_IF_EXISTS", "true")
	t.Setenv("SURFIN_DATABASE_LOG_SQL", "true")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "/var/out/books.csv", cfg.App.Output.Path)
	assert.True(t, cfg.App.Output.DeleteIfExists)
	assert.True(t, cfg.Surfin.Database.LogSQL)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("APP_MESSAGE=from dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("APP_MESSAGE") })

	cfg, err := config.LoadConfig(envFile, nil)
	require.NoError(t, err)
	assert.Equal(t, "from dotenv", cfg.App.Message)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Setenv("SURFIN_BATCH_CHUNK_SIZE", "ten")
	_, err := config.LoadConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SURFIN_BATCH_CHUNK_SIZE")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Surfin.Batch.ChunkSize = 0
	cfg.App.Output.Delimiter = ""
	cfg.Surfin.Batch.JobRepository = "redis"
	cfg.Surfin.Batch.IsolationLevel = "READ_COMITTED"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "delimiter")
	assert.Contains(t, err.Error(), "job_repository")
	assert.Contains(t, err.Error(), "isolation_level")
}

func TestValidate_AcceptsKnownIsolationLevels(t *testing.T) {
	for _, level := range []string{"", "READ_COMMITTED", "SERIALIZABLE"} {
		cfg := config.NewConfig()
		cfg.Surfin.Batch.IsolationLevel = level
		assert.NoError(t, cfg.Validate(), level)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("surfin: [unterminated"))
	assert.Error(t, err)
}
