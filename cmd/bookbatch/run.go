package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/tigerroll/bookbatch/internal/app"
	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/bookbatch/pkg/batch/core/metrics"
	inframetrics "github.com/tigerroll/bookbatch/pkg/batch/infrastructure/metrics"
	batchlistener "github.com/tigerroll/bookbatch/pkg/batch/listener"
	"github.com/tigerroll/bookbatch/pkg/batch/listener/notification"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// errJobNotCompleted makes the process exit with status 1.
var errJobNotCompleted = errors.New("job did not complete")

const stopTimeout = time.Minute

// jobResult receives the outcome of the job goroutine.
type jobResult struct {
	execution *model.JobExecution
	err       error
}

// observability bundles the recorder and tracer handed to every step.
type observability struct {
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Prometheus *inframetrics.PrometheusRecorder
}

// runJob loads the configuration, then lets fx run the job once and shut everything down.
func runJob(ctx context.Context, opts runOptions, embedded []byte, out io.Writer) error {
	cfg, err := config.LoadConfig(opts.EnvFile, embedded)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.SetFormat(cfg.Surfin.System.Logging.Format)
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Surfin.System.Logging.Level)

	result := &jobResult{}
	fxApp := fx.New(
		logger.Module,
		fx.StopTimeout(stopTimeout),
		fx.Supply(
			cfg,
			result,
			fx.Annotate(
				ctx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),
		fx.Provide(func() io.Writer { return out }),
		fx.Provide(
			newObservability,
			batchlistener.NewJobCompletionSignaler,
			newApplication,
		),
		fx.Invoke(registerMetricsServer),
		fx.Invoke(fx.Annotate(startJobExecution, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // application *app.Application
			"",              // signaler *batchlistener.JobCompletionSignaler
			"",              // result *jobResult
			`name:"appCtx"`, // appCtx context.Context
		))),
	)
	if err := fxApp.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	sig := <-fxApp.Wait()
	logger.Debugf("Shutdown requested (signal: %v, exit code: %d).", sig.Signal, sig.ExitCode)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
	}

	if result.err != nil {
		return fmt.Errorf("%w: %v", errJobNotCompleted, result.err)
	}
	if result.execution == nil || result.execution.Status != model.BatchStatusCompleted {
		return errJobNotCompleted
	}
	return nil
}

// newObservability builds the Prometheus recorder and the OpenTelemetry providers the
// configuration enables. Disabled parts fall back to no-ops.
func newObservability(lc fx.Lifecycle, cfg *config.Config) (*observability, error) {
	obs := &observability{}
	var recorders []metrics.MetricRecorder

	metricsCfg := cfg.Surfin.Observability.Metrics
	if metricsCfg.Enabled {
		obs.Prometheus = inframetrics.NewPrometheusRecorder(metricsCfg.Namespace, true)
		recorders = append(recorders, obs.Prometheus)
	}

	otlpCfg := cfg.Surfin.Observability.OTLP
	if otlpCfg.Enabled {
		telemetry, err := inframetrics.NewTelemetry(context.Background(), otlpCfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: telemetry.Shutdown})

		otelRecorder, err := inframetrics.NewOpenTelemetryRecorder(telemetry.MeterProvider)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, otelRecorder)
		obs.Tracer = inframetrics.NewOpenTelemetryTracer(telemetry.TracerProvider)
	}

	switch len(recorders) {
	case 0:
		obs.Recorder = metrics.NewNoOpMetricRecorder()
	case 1:
		obs.Recorder = recorders[0]
	default:
		obs.Recorder = metrics.NewCompositeMetricRecorder(recorders...)
	}
	if obs.Tracer == nil {
		obs.Tracer = metrics.NewNoOpTracer()
	}
	return obs, nil
}

// newApplication composes the job. The run summary and the completion signal are
// job listeners next to the built-in ones.
func newApplication(
	lc fx.Lifecycle,
	cfg *config.Config,
	out io.Writer,
	obs *observability,
	signaler *batchlistener.JobCompletionSignaler,
) (*app.Application, error) {
	application, err := app.BuildJob(context.Background(), app.Options{
		Config:         cfg,
		Out:            out,
		MetricRecorder: obs.Recorder,
		Tracer:         obs.Tracer,
		JobListeners: []port.JobExecutionListener{
			notification.NewNotificationListener(notification.NewLogNotifier(), notification.NewSummaryNotifier(out)),
			signaler,
		},
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return application.Close()
		},
	})
	return application, nil
}

// registerMetricsServer serves the Prometheus registry on the configured address for the
// lifetime of the process.
func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, obs *observability) {
	addr := cfg.Surfin.Observability.Metrics.Address
	if obs.Prometheus == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(obs.Prometheus.GetRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Infof("Serving metrics on %s/metrics", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics server failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}

// startJobExecution is invoked by Fx to begin the batch job execution.
func startJobExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	application *app.Application,
	signaler *batchlistener.JobCompletionSignaler,
	result *jobResult,
	appCtx context.Context,
) {
	jobCtx, cancel := context.WithCancel(appCtx)
	finished := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(finished)
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
						result.err = fmt.Errorf("panic in job execution: %v", r)
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()

				result.execution, result.err = application.Run(jobCtx)
				exitCode := 0
				if result.err != nil || result.execution == nil || result.execution.Status != model.BatchStatusCompleted {
					exitCode = 1
				}
				logger.Infof("Requesting application shutdown after job completion.")
				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Errorf("Failed to request shutdown: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// A signal may stop the application while the job is still running.
			cancel()
			select {
			case <-finished:
			case <-ctx.Done():
				return fmt.Errorf("job did not stop in time: %w", ctx.Err())
			}
			select {
			case <-signaler.Done():
			default:
				logger.Warnf("Job ended before its listeners were notified.")
			}
			return nil
		},
	})
}
