package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	ServiceName  string
	Environment  string // "development", "staging", "production"
	LogLevel     string // empty uses the environment default
	OTLPEndpoint string // empty disables trace export
	SampleRatio  float64
}

// Observability holds all telemetry providers
type Observability struct {
	Logger         *slog.Logger
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Metrics        *Metrics

	registry *prometheus.Registry
}

// Setup initializes logging, tracing and metrics
func Setup(ctx context.Context, cfg Config) (*Observability, error) {
	logger, err := NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	res, err := NewResource(ctx, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return nil, err
	}

	tp, err := NewTracerProvider(ctx, res, TraceConfig{
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	mp, registry, err := NewMeterProvider(res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	metrics, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	logger.Info("observability initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.Bool("trace_export", cfg.OTLPEndpoint != ""),
		slog.Float64("trace_sample_ratio", cfg.SampleRatio),
	)

	return &Observability{
		Logger:         logger,
		TracerProvider: tp,
		MeterProvider:  mp,
		Metrics:        metrics,
		registry:       registry,
	}, nil
}

// MetricsHandler serves the Prometheus exposition of all service counters
func (o *Observability) MetricsHandler() http.Handler {
	return MetricsHandler(o.registry)
}

// Shutdown flushes and stops all telemetry providers
func (o *Observability) Shutdown(ctx context.Context) error {
	o.Logger.Info("shutting down observability")

	var errs []error
	if o.TracerProvider != nil {
		if err := o.TracerProvider.Shutdown(ctx); err != nil {
			o.Logger.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if o.MeterProvider != nil {
		if err := o.MeterProvider.Shutdown(ctx); err != nil {
			o.Logger.Error("failed to shutdown meter provider", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
