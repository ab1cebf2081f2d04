package app_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bookbatch/internal/app"
	"github.com/tigerroll/bookbatch/internal/domain/entity"
	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	batchtest "github.com/tigerroll/bookbatch/pkg/batch/test"
)

const (
	inputPath  = "/in/books.xml"
	outputPath = "/out/books.csv"
)

// booksXML renders n books; the book at position bad (1-based) gets a non-numeric year.
func booksXML(n, bad int) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<books>\n")
	for i := 1; i <= n; i++ {
		year := fmt.Sprintf("%d", 1900+i)
		if i == bad {
			year = "unknown"
		}
		fmt.Fprintf(&b, "  <book>\n    <title>Book %02d</title>\n    <year>%s</year>\n  </book>\n", i, year)
	}
	b.WriteString("</books>\n")
	return b.String()
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.Database.Database = filepath.Join(t.TempDir(), "books.db")
	cfg.App.Input.Path = inputPath
	cfg.App.Output.Path = outputPath
	return cfg
}

func build(t *testing.T, cfg *config.Config, fs afero.Fs, out *bytes.Buffer, extra ...*batchtest.EventRecorder) *app.Application {
	t.Helper()
	opts := app.Options{Config: cfg, Fs: fs, Out: out}
	for _, l := range extra {
		opts.JobListeners = append(opts.JobListeners, l)
	}
	application, err := app.BuildJob(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, application.Close()) })
	return application
}

func countBooks(t *testing.T, application *app.Application) int64 {
	t.Helper()
	var n int64
	require.NoError(t, application.DB.GetGormDB().Model(&entity.Book{}).Count(&n).Error)
	return n
}

func TestBuildJob_Steps(t *testing.T) {
	application := build(t, newConfig(t), afero.NewMemMapFs(), &bytes.Buffer{})

	var names []string
	for _, s := range application.Job.Steps() {
		names = append(names, s.StepName())
	}
	assert.Equal(t, []string{app.MigrationStepName, app.MessageStepName, app.ChunkStepName}, names)
	assert.Equal(t, "simpleJob", application.Job.JobName())
}

func TestBuildJob_OptionalSteps(t *testing.T) {
	cfg := newConfig(t)
	cfg.App.Message = ""
	cfg.App.Migration.Enabled = false
	application := build(t, cfg, afero.NewMemMapFs(), &bytes.Buffer{})

	require.Len(t, application.Job.Steps(), 1)
	assert.Equal(t, app.ChunkStepName, application.Job.Steps()[0].StepName())
}

func TestBuildJob_RequiresConfig(t *testing.T) {
	_, err := app.BuildJob(context.Background(), app.Options{})
	assert.Error(t, err)
}

func TestApplication_RunEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, inputPath, []byte(booksXML(23, 0)), 0o644))
	out := &bytes.Buffer{}
	events := &batchtest.EventRecorder{}
	application := build(t, newConfig(t), fs, out, events)

	je, err := application.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, []string{"beforeJob", "afterJob:COMPLETED"}, events.Events)
	require.Len(t, je.StepExecutions, 3)
	chunk := je.StepExecutions[2]
	assert.Equal(t, app.ChunkStepName, chunk.StepName)
	assert.Equal(t, 23, chunk.ReadCount)
	assert.Equal(t, 23, chunk.WriteCount)
	assert.Equal(t, 3, chunk.CommitCount)

	assert.EqualValues(t, 23, countBooks(t, application))

	data, err := afero.ReadFile(fs, outputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 23)
	assert.Equal(t, "Book 01;1901", lines[0])
	assert.Equal(t, "Book 23;1923", lines[22])

	printed := out.String()
	assert.True(t, strings.HasPrefix(printed, "Hello, batch!\n"))
	assert.Equal(t, 23, strings.Count(printed, "Book(title="))
	assert.Contains(t, printed, "Book(title=Book 23, year=1923)")

	stored, err := application.Repository.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
}

func TestApplication_RunWithSQLJobRepository(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, inputPath, []byte(booksXML(5, 0)), 0o644))
	cfg := newConfig(t)
	cfg.Surfin.Batch.JobRepository = config.JobRepositorySQL
	application := build(t, cfg, fs, &bytes.Buffer{})

	je, err := application.Run(context.Background())
	require.NoError(t, err)

	stored, err := application.Repository.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	require.Len(t, stored.StepExecutions, 3)
	assert.Equal(t, 5, stored.StepExecutions[2].WriteCount)
}

func TestApplication_RunFailsOnBadRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, inputPath, []byte(booksXML(23, 15)), 0o644))
	out := &bytes.Buffer{}
	application := build(t, newConfig(t), fs, out)

	je, err := application.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.NotEmpty(t, je.Failures)
	chunk := je.StepExecutions[len(je.StepExecutions)-1]
	assert.Equal(t, model.BatchStatusFailed, chunk.Status)
	assert.Equal(t, 1, chunk.CommitCount)
	assert.Equal(t, 1, chunk.RollbackCount)

	// Only the first chunk reached either sink.
	assert.EqualValues(t, 10, countBooks(t, application))
	data, err := afero.ReadFile(fs, outputPath)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(string(data), "\n"))
	assert.Equal(t, 10, strings.Count(out.String(), "Book(title="), "read-back still runs after a failure")
}

func TestApplication_RunTwiceRecreatesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, inputPath, []byte(booksXML(4, 0)), 0o644))
	application := build(t, newConfig(t), fs, &bytes.Buffer{})

	_, err := application.Run(context.Background())
	require.NoError(t, err)
	first, err := afero.ReadFile(fs, outputPath)
	require.NoError(t, err)

	je, err := application.Run(context.Background())
	require.NoError(t, err)
	second, err := afero.ReadFile(fs, outputPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 2, je.Parameters.Get("run.id"))
	assert.EqualValues(t, 8, countBooks(t, application), "the table keeps the rows of earlier runs")
}
