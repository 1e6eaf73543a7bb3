// Package telemetry sets up logging, tracing and metrics for the process.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/xerrors"
)

type Config struct {
	ServiceName string
	// LogLevel is parsed as a slog level, usually from GO_LOG.
	LogLevel string
	// LogFile sends logs to a rotating file instead of stderr.
	LogFile string
	Debug   bool
	// OTLPEndpoint enables trace export. The exporter itself reads the
	// standard OTEL_EXPORTER_OTLP_* variables.
	OTLPEndpoint   string
	PushgatewayURL string
}

type Telemetry struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry

	config        Config
	logCloser     io.Closer
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
}

// Setup installs the global logger, tracer provider, meter provider and
// propagator. Shutdown must be called before exit to flush and push.
func Setup(ctx context.Context, config Config) (*Telemetry, error) {
	t := &Telemetry{config: config}

	var w io.Writer = os.Stderr
	if config.LogFile != "" {
		logFile := newLogFile(config.LogFile)
		w = logFile
		t.logCloser = logFile
	}
	logger, err := NewLogger(w, config.LogLevel, config.Debug)
	if err != nil {
		return nil, err
	}
	t.Logger = logger.With("service", config.ServiceName)
	slog.SetDefault(t.Logger)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithTelemetrySDK(),
		sdkresource.WithAttributes(semconv.ServiceName(config.ServiceName)),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create resource: %w", err)
	}

	traceOptions := []sdktrace.TracerProviderOption{sdktrace.WithResource(r)}
	if config.OTLPEndpoint != "" {
		traceExporter, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to create trace exporter: %w", err)
		}
		traceOptions = append(traceOptions, sdktrace.WithBatcher(traceExporter))
	}
	t.traceProvider = sdktrace.NewTracerProvider(traceOptions...)
	otel.SetTracerProvider(t.traceProvider)

	t.Registry = prometheus.NewRegistry()
	t.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(t.Registry))
	if err != nil {
		return nil, xerrors.Errorf("failed to create exporter: %w", err)
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(r),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(t.meterProvider)

	return t, nil
}

// Shutdown pushes the collected metrics when a pushgateway is configured and
// flushes every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.config.PushgatewayURL != "" {
		if err := push.New(t.config.PushgatewayURL, t.config.ServiceName).Gatherer(t.Registry).PushContext(ctx); err != nil {
			errs = append(errs, xerrors.Errorf("failed to push metrics: %w", err))
		}
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, xerrors.Errorf("failed to shutdown meter provider: %w", err))
	}
	if err := t.traceProvider.Shutdown(ctx); err != nil {
		errs = append(errs, xerrors.Errorf("failed to shutdown trace provider: %w", err))
	}
	if t.logCloser != nil {
		if err := t.logCloser.Close(); err != nil {
			errs = append(errs, xerrors.Errorf("failed to close log file: %w", err))
		}
	}

	return errors.Join(errs...)
}
