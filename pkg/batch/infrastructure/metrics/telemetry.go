package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	logger "github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// OTLPConfig selects how spans and metrics leave the process.
type OTLPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Protocol    string `yaml:"protocol"` // "http" or "grpc"
	Endpoint    string `yaml:"endpoint"` // host:port
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Telemetry owns the OpenTelemetry providers of the process.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewTelemetry builds tracer and meter providers. When OTLP export is disabled the
// providers still work but nothing is exported.
func NewTelemetry(ctx context.Context, cfg OTLPConfig) (*Telemetry, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	if !cfg.Enabled {
		return &Telemetry{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)),
		}, nil
	}

	var (
		spanExporter   sdktrace.SpanExporter
		metricExporter sdkmetric.Exporter
		err            error
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "http":
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if spanExporter, err = otlptracehttp.New(ctx, traceOpts...); err != nil {
			return nil, fmt.Errorf("failed to create OTLP/HTTP trace exporter: %w", err)
		}
		if metricExporter, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			return nil, fmt.Errorf("failed to create OTLP/HTTP metric exporter: %w", err)
		}
	case "grpc":
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		if spanExporter, err = otlptracegrpc.New(ctx, traceOpts...); err != nil {
			return nil, fmt.Errorf("failed to create OTLP/gRPC trace exporter: %w", err)
		}
		if metricExporter, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
			return nil, fmt.Errorf("failed to create OTLP/gRPC metric exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
	}

	logger.Infof("OpenTelemetry export enabled (protocol: %s, endpoint: %s).", cfg.Protocol, cfg.Endpoint)
	return &Telemetry{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter), sdktrace.WithResource(res)),
		MeterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		),
	}, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	if err := t.TracerProvider.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracer provider: %w", err))
	}
	if err := t.MeterProvider.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("meter provider: %w", err))
	}
	return result.ErrorOrNil()
}
