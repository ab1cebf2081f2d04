package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
)

const twoBooks = `<?xml version="1.0" encoding="UTF-8"?>
<books>
  <book><title>Dune</title><year>1965</year></book>
  <book><title>Neuromancer</title><year>1984</year></book>
</books>
`

func TestRunOptions_Apply(t *testing.T) {
	cfg := config.NewConfig()
	runOptions{LogLevel: "debug", ChunkSize: 3, Input: "in.xml", Output: "out.csv"}.apply(cfg)

	assert.Equal(t, "DEBUG", cfg.Surfin.System.Logging.Level)
	assert.Equal(t, 3, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "in.xml", cfg.App.Input.Path)
	assert.Equal(t, "out.csv", cfg.App.Output.Path)

	untouched := config.NewConfig()
	runOptions{}.apply(untouched)
	assert.Equal(t, config.NewConfig().App, untouched.App)
}

func TestRootCommand_HasRunFlags(t *testing.T) {
	run, _, err := newRootCommand().Find([]string{"run"})
	require.NoError(t, err)
	for _, name := range []string{flagEnvFile, flagLogLevel, flagChunkSize, flagInput, flagOutput} {
		assert.NotNil(t, run.Flags().Lookup(name), name)
	}
	assert.Contains(t, run.Long, "working directory")
	assert.Contains(t, run.Flags().Lookup(flagInput).Usage, "resources/books.xml")
}

func TestEmbeddedConfigLoads(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.env"), embeddedConfig)
	require.NoError(t, err)
	assert.Equal(t, "simpleJob", cfg.Surfin.Batch.JobName)
	assert.Equal(t, "resources/books.xml", cfg.App.Input.Path)
	assert.Equal(t, ";", cfg.App.Output.Delimiter)
}

func setupRun(t *testing.T, xml string) (input, output string) {
	t.Helper()
	dir := t.TempDir()
	input = filepath.Join(dir, "books.xml")
	output = filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(input, []byte(xml), 0o644))
	t.Setenv("SURFIN_DATABASE_DATABASE", filepath.Join(dir, "books.db"))
	t.Setenv("SURFIN_SYSTEM_LOGGING_LEVEL", "ERROR")
	return input, output
}

func TestRunJob_Completes(t *testing.T) {
	input, output := setupRun(t, twoBooks)
	out := &bytes.Buffer{}

	err := runJob(context.Background(), runOptions{Input: input, Output: output, ChunkSize: 1}, embeddedConfig, out)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Dune;1965\nNeuromancer;1984\n", string(data))

	printed := out.String()
	assert.Contains(t, printed, "Hello, batch!")
	assert.Contains(t, printed, "Book(title=Dune, year=1965)")
	assert.Contains(t, printed, "Book(title=Neuromancer, year=1984)")
	assert.Contains(t, printed, "XMLToCSV")
}

func TestRunJob_FailureIsReported(t *testing.T) {
	input, output := setupRun(t, strings.Replace(twoBooks, "1984", "later", 1))
	out := &bytes.Buffer{}

	err := runJob(context.Background(), runOptions{Input: input, Output: output}, embeddedConfig, out)
	require.ErrorIs(t, err, errJobNotCompleted)
	assert.Contains(t, out.String(), "FAILED")
}

func TestRunJob_InvalidOverride(t *testing.T) {
	err := runJob(context.Background(), runOptions{ChunkSize: -1}, embeddedConfig, &bytes.Buffer{})
	assert.Error(t, err)
}
