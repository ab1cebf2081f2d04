// Package app is the composition root of the book job. It builds every component in
// dependency order and hands back the job ready to run.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/tigerroll/bookbatch/internal/domain/entity"
	booklistener "github.com/tigerroll/bookbatch/internal/listener"
	"github.com/tigerroll/bookbatch/internal/migrations"
	bookreader "github.com/tigerroll/bookbatch/internal/step/reader"
	booktasklet "github.com/tigerroll/bookbatch/internal/step/tasklet"
	bookwriter "github.com/tigerroll/bookbatch/internal/step/writer"
	gormadapter "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/bookbatch/pkg/batch/adapter/database/gorm/sqlite"
	migrationtasklet "github.com/tigerroll/bookbatch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/bookbatch/pkg/batch/core/domain/repository"
	runner "github.com/tigerroll/bookbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/bookbatch/pkg/batch/core/support/incrementer"
	itemstep "github.com/tigerroll/bookbatch/pkg/batch/engine/step/item"
	taskletstep "github.com/tigerroll/bookbatch/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/bookbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/bookbatch/pkg/batch/infrastructure/repository/sql"
	logginglistener "github.com/tigerroll/bookbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

const moduleName = "app"

// Step names, in execution order.
const (
	MigrationStepName = "migrationStep"
	MessageStepName   = "step1"
	ChunkStepName     = "XMLToCSV"
)

// ConnectionName names the single database connection of the job.
const ConnectionName = "default"

// Options are the dependencies of BuildJob. Only Config is required.
type Options struct {
	Config *config.Config
	// Fs resolves the input and output paths. Defaults to the OS filesystem.
	Fs afero.Fs
	// Out receives the message of step1 and the read-back rows. Defaults to stdout.
	Out            io.Writer
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	// JobListeners run after the built-in ones.
	JobListeners []port.JobExecutionListener
}

// Application holds the composed job and the resources it owns.
type Application struct {
	Job        *runner.FlowJob
	Runner     *runner.SimpleJobRunner
	Repository repository.JobRepository
	DB         *gormadapter.GormDBAdapter

	cfg *config.Config
}

// BuildJob opens the database and wires the steps of the book job:
// the schema migration (when enabled), the message tasklet (when a message is set)
// and the XML to table and file chunk step.
func BuildJob(ctx context.Context, opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, exception.NewBatchErrorf(moduleName, "configuration is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.MetricRecorder == nil {
		opts.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if opts.Tracer == nil {
		opts.Tracer = metrics.NewNoOpTracer()
	}

	db, err := gormadapter.Open(ConnectionName, cfg.Surfin.Database)
	if err != nil {
		return nil, err
	}
	app := &Application{DB: db, cfg: cfg}

	if err := app.build(ctx, opts); err != nil {
		if closeErr := app.Close(); closeErr != nil {
			logger.Warnf("Failed to release resources after a build failure: %v", closeErr)
		}
		return nil, err
	}
	return app, nil
}

func (a *Application) build(ctx context.Context, opts Options) error {
	cfg := a.cfg

	repo, err := newJobRepository(ctx, cfg.Surfin.Batch.JobRepository, a.DB)
	if err != nil {
		return err
	}
	a.Repository = repo

	stepListener := logginglistener.NewLoggingStepListener()
	var steps []port.Step

	if cfg.App.Migration.Enabled {
		steps = append(steps, taskletstep.NewTaskletStep(MigrationStepName,
			migrationtasklet.NewMigrationTasklet(a.DB, migrations.FS),
			repo,
			taskletstep.WithStepExecutionListeners(stepListener),
			taskletstep.WithMetricRecorder(opts.MetricRecorder),
			taskletstep.WithTracer(opts.Tracer),
		))
	}

	if cfg.App.Message != "" {
		messageTasklet, err := booktasklet.NewMessageTasklet(cfg.App.Message, opts.Out)
		if err != nil {
			return err
		}
		steps = append(steps, taskletstep.NewTaskletStep(MessageStepName, messageTasklet, repo,
			taskletstep.WithStepExecutionListeners(stepListener),
			taskletstep.WithMaxIterations(cfg.Surfin.Batch.MaxTaskletIterations),
			taskletstep.WithMetricRecorder(opts.MetricRecorder),
			taskletstep.WithTracer(opts.Tracer),
		))
	}

	bookWriter, err := bookwriter.NewBookWriter(opts.Fs, cfg.App.Output)
	if err != nil {
		return err
	}
	chunkStep, err := itemstep.NewChunkStep[entity.Book, entity.Book](
		ChunkStepName,
		bookreader.NewBookReader(opts.Fs, cfg.App.Input.Path, cfg.App.Input.Fragment),
		nil,
		bookWriter,
		cfg.Surfin.Batch.ChunkSize,
		repo,
		gormadapter.NewGormTransactionManager(a.DB),
		itemstep.WithStepExecutionListeners(stepListener),
		itemstep.WithChunkListeners(logginglistener.NewLoggingChunkListener()),
		itemstep.WithMetricRecorder(opts.MetricRecorder),
		itemstep.WithTracer(opts.Tracer),
		itemstep.WithIsolationLevel(cfg.Surfin.Batch.IsolationLevel),
	)
	if err != nil {
		return err
	}
	steps = append(steps, chunkStep)

	jobListeners := []port.JobExecutionListener{
		logginglistener.NewLoggingJobListener(),
		booklistener.NewBookReadBackListener(a.DB, opts.Out),
	}
	jobListeners = append(jobListeners, opts.JobListeners...)

	a.Job = runner.NewFlowJob(cfg.Surfin.Batch.JobName, steps, repo,
		runner.WithJobListeners(jobListeners...),
		runner.WithMetricRecorder(opts.MetricRecorder),
		runner.WithTracer(opts.Tracer),
	)
	a.Runner = runner.NewSimpleJobRunner(repo)
	logger.Debugf("Job '%s' built with %d step(s).", a.Job.JobName(), len(steps))
	return nil
}

func newJobRepository(ctx context.Context, kind string, db *gormadapter.GormDBAdapter) (repository.JobRepository, error) {
	switch kind {
	case "", config.JobRepositoryInMemory:
		return inmemory.NewInMemoryJobRepository(), nil
	case config.JobRepositorySQL:
		return sqlrepo.NewSQLJobRepository(ctx, db)
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unsupported job repository: %s", kind)
	}
}

// Parameters returns the job parameters of the next run: the input and output locations,
// the chunk size and a run.id one above that of the latest recorded execution.
func (a *Application) Parameters(ctx context.Context) model.JobParameters {
	previous := model.NewJobParameters()
	executions, err := a.Repository.FindJobExecutionsByJobName(ctx, a.Job.JobName())
	if err != nil {
		logger.Warnf("Could not look up previous executions of job '%s': %v", a.Job.JobName(), err)
	} else if len(executions) > 0 {
		previous = executions[len(executions)-1].Parameters
	}

	params := incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDKey).GetNext(previous)
	params.Put("input.path", a.cfg.App.Input.Path)
	params.Put("output.path", a.cfg.App.Output.Path)
	params.Put("chunk.size", a.cfg.Surfin.Batch.ChunkSize)
	return params
}

// Run launches the job once.
func (a *Application) Run(ctx context.Context) (*model.JobExecution, error) {
	if a.Job == nil || a.Runner == nil {
		return nil, exception.NewBatchErrorf(moduleName, "application is not built")
	}
	return a.Runner.Run(ctx, a.Job, a.Parameters(ctx))
}

// Close releases the repository and the database connection.
func (a *Application) Close() error {
	var result *multierror.Error
	if a.Repository != nil {
		if err := a.Repository.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("job repository: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
