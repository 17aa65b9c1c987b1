package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/zhejian/shorty"

// NewMeterProvider creates an OTel MeterProvider whose readings are exposed
// through a dedicated Prometheus registry.
func NewMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	return mp, registry, nil
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Metrics holds the service counters
type Metrics struct {
	allocations metric.Int64Counter
	collisions  metric.Int64Counter
	resolutions metric.Int64Counter
	clicks      metric.Int64Counter
}

// NewMetrics registers the service counters on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	allocations, err := meter.Int64Counter("shorty_allocations",
		metric.WithDescription("Short URL allocations by result"))
	if err != nil {
		return nil, err
	}
	collisions, err := meter.Int64Counter("shorty_allocation_collisions",
		metric.WithDescription("Candidate codes rejected as already taken"))
	if err != nil {
		return nil, err
	}
	resolutions, err := meter.Int64Counter("shorty_resolutions",
		metric.WithDescription("Short code lookups by result"))
	if err != nil {
		return nil, err
	}
	clicks, err := meter.Int64Counter("shorty_clicks_tracked",
		metric.WithDescription("Click tracking attempts by path and result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		allocations: allocations,
		collisions:  collisions,
		resolutions: resolutions,
		clicks:      clicks,
	}, nil
}

func (m *Metrics) AllocationCompleted(ctx context.Context, result string) {
	m.allocations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) AllocationCollision(ctx context.Context) {
	m.collisions.Add(ctx, 1)
}

func (m *Metrics) ResolutionCompleted(ctx context.Context, result string) {
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) ClickTracked(ctx context.Context, path, result string) {
	m.clicks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("result", result),
	))
}
