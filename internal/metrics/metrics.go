// Package metrics instruments the syscall dispatch surface with
// OpenTelemetry counters and a latency histogram, grounded on gcsfuse's
// common/otel_metrics.go: its FSOpKey-keyed fs/ops_count, fs/ops_error_count,
// and fs/ops_latency instruments annotate "the file system op processed"
// generically, the same shape this kernel needs for the one place that
// already sees every operation go by — internal/syscall/dispatch.go's
// Dispatch.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyscallKey annotates the syscall name a metric describes, mirroring
// otel_metrics.go's FSOpKey.
const SyscallKey = "syscall"

var (
	syscallMeter = otel.Meter("syscall")

	syscallAttributeSets sync.Map
)

func getSyscallAttributeSet(name string) metric.MeasurementOption {
	if v, ok := syscallAttributeSets.Load(name); ok {
		return v.(metric.MeasurementOption)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(attribute.String(SyscallKey, name)))
	v, _ := syscallAttributeSets.LoadOrStore(name, opt)
	return v.(metric.MeasurementOption)
}

// defaultLatencyDistribution mirrors telemetry.go's defaultLatencyDistribution
// bucket set. Latency is recorded in microseconds, so the boundaries run from
// 1 µs to 10,000 µs (10 ms).
var defaultLatencyDistribution = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

// Handle is the instrument set Dispatch records into: a narrowing of
// gcsfuse's OpsMetricHandle (Count/Latency/ErrorCount) down to this kernel's
// single dimension, syscall name, in place of gcsfuse's fs-op/error-category
// pair.
type Handle interface {
	SyscallCount(ctx context.Context, name string)
	SyscallErrorCount(ctx context.Context, name string)
	SyscallLatency(ctx context.Context, name string, latency time.Duration)
}

type otelHandle struct {
	count    metric.Int64Counter
	errCount metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewOTelMetrics builds the real instrument set against the process-wide
// MeterProvider (wired up by NewPrometheusExporter at boot; until that runs,
// otel's default no-op provider makes these instruments harmless no-ops).
func NewOTelMetrics() (Handle, error) {
	count, err1 := syscallMeter.Int64Counter("syscall/count",
		metric.WithDescription("The cumulative number of syscalls dispatched, by syscall name."))
	errCount, err2 := syscallMeter.Int64Counter("syscall/error_count",
		metric.WithDescription("The cumulative number of syscalls that returned an error, by syscall name."))
	latency, err3 := syscallMeter.Float64Histogram("syscall/latency",
		metric.WithDescription("The distribution of syscall dispatch latency, by syscall name."),
		metric.WithUnit("us"), defaultLatencyDistribution)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &otelHandle{count: count, errCount: errCount, latency: latency}, nil
}

func (h *otelHandle) SyscallCount(ctx context.Context, name string) {
	h.count.Add(ctx, 1, getSyscallAttributeSet(name))
}

func (h *otelHandle) SyscallErrorCount(ctx context.Context, name string) {
	h.errCount.Add(ctx, 1, getSyscallAttributeSet(name))
}

func (h *otelHandle) SyscallLatency(ctx context.Context, name string, latency time.Duration) {
	h.latency.Record(ctx, float64(latency.Microseconds()), getSyscallAttributeSet(name))
}

// NewNoopMetrics returns a Handle that records nothing, mirroring
// common/noop_metrics.go — the default until a real exporter is wired, and
// what tests use so dispatch_test.go doesn't need a live MeterProvider.
func NewNoopMetrics() Handle { return noopHandle{} }

type noopHandle struct{}

func (noopHandle) SyscallCount(context.Context, string)                  {}
func (noopHandle) SyscallErrorCount(context.Context, string)             {}
func (noopHandle) SyscallLatency(context.Context, string, time.Duration) {}
