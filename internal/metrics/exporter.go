package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc mirrors gcsfuse's common.ShutdownFn: a deferred teardown hook
// for whatever NewPrometheusExporter wired up.
type ShutdownFunc func(ctx context.Context) error

// NewPrometheusExporter wires a Prometheus-scrapeable OTel MeterProvider as
// the process-wide default (otel.SetMeterProvider), the OTel-native
// successor to gcsfuse's older contrib.go.opencensus.io/exporter/prometheus
// path (see DESIGN.md's dropped-dependency entry for the OpenCensus/
// Stackdriver cluster this supersedes). Returns an http.Handler serving the
// registry's scrape endpoint and a shutdown func to flush the provider on
// exit.
func NewPrometheusExporter() (http.Handler, ShutdownFunc, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), provider.Shutdown, nil
}
