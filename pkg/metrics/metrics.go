// Package metrics wires core/bufferpool's OpenTelemetry observable
// counters to a Prometheus scrape target, the way pkg/telemetry does
// for the rest of the teacher's stack — trimmed to metrics only, since
// this module carries no tracing surface, and to a plain http.Handler
// rather than an owned listener, since running a network server is
// outside this engine's scope.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config configures the Prometheus-backed metrics pipeline.
type Config struct {
	// ServiceName tags the exported resource's "service.name"
	// attribute, so an embedder scraping several BufferPool processes
	// from one Prometheus can tell them apart. Defaults to
	// "pagecache" when empty.
	ServiceName string
}

// ShutdownFunc flushes and releases the meter provider.
type ShutdownFunc func(ctx context.Context) error

// New builds a MeterProvider backed by a Prometheus exporter and
// installs it as the global OpenTelemetry MeterProvider. Every
// core/bufferpool.BufferPool already registered its observable
// counters against otel.Meter(...) at Open time; OpenTelemetry's
// global package delegates those registrations to whichever provider
// is installed here, in whatever order New and Open are called in.
//
// The returned http.Handler serves the Prometheus text exposition
// format for whatever counters have been registered so far; the
// caller mounts it at its own path and listener.
func New(cfg Config) (http.Handler, ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pagecache"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}
	return promhttp.Handler(), shutdown, nil
}
