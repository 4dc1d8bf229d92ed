// Package observe provides application-wide observability primitives for
// Shine: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Shine metrics.
const meterName = "github.com/shinelabs/shine"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AnalyzerDuration tracks analyzer (LLM) call latency.
	AnalyzerDuration metric.Float64Histogram

	// StoreAppendDuration tracks event store append latency.
	StoreAppendDuration metric.Float64Histogram

	// --- Counters ---

	// EventsAppended counts events written to the store. Use with attribute:
	//   attribute.String("type", ...)
	EventsAppended metric.Int64Counter

	// OverlapSignals counts interruption candidates emitted by the detector.
	// Use with attribute: attribute.String("confidence", ...)
	OverlapSignals metric.Int64Counter

	// AnalyzerRuns counts analysis passes. Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("outcome", ...)
	AnalyzerRuns metric.Int64Counter

	// NotifierDeliveries counts view deliveries to subscribers. Use with
	// attribute: attribute.String("strategy", ...)
	NotifierDeliveries metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts analyzer provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live meeting sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks the number of connected event subscribers
	// across all sessions.
	ActiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Analyzer
// calls sit in the seconds range, store appends in the milliseconds range.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalyzerDuration, err = m.Float64Histogram("shine.analyzer.duration",
		metric.WithDescription("Latency of analyzer calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreAppendDuration, err = m.Float64Histogram("shine.store.append.duration",
		metric.WithDescription("Latency of event store appends."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsAppended, err = m.Int64Counter("shine.events.appended",
		metric.WithDescription("Total events appended by type."),
	); err != nil {
		return nil, err
	}
	if met.OverlapSignals, err = m.Int64Counter("shine.overlap.signals",
		metric.WithDescription("Total overlap signals emitted by confidence."),
	); err != nil {
		return nil, err
	}
	if met.AnalyzerRuns, err = m.Int64Counter("shine.analyzer.runs",
		metric.WithDescription("Total analysis passes by trigger and outcome."),
	); err != nil {
		return nil, err
	}
	if met.NotifierDeliveries, err = m.Int64Counter("shine.notifier.deliveries",
		metric.WithDescription("Total view deliveries by strategy."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("shine.provider.errors",
		metric.WithDescription("Total analyzer provider errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("shine.active_sessions",
		metric.WithDescription("Number of live meeting sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("shine.active_subscribers",
		metric.WithDescription("Number of connected event subscribers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("shine.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordEventAppended records one appended event of the given type.
func (m *Metrics) RecordEventAppended(ctx context.Context, eventType string) {
	m.EventsAppended.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordOverlapSignal records one emitted overlap signal.
func (m *Metrics) RecordOverlapSignal(ctx context.Context, confidence string) {
	m.OverlapSignals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("confidence", confidence)),
	)
}

// RecordAnalyzerRun records one analysis pass with its trigger ("scheduled"
// or "manual") and outcome ("completed", "nudge", "no_finding", "empty",
// "error", "dropped").
func (m *Metrics) RecordAnalyzerRun(ctx context.Context, trigger, outcome string) {
	m.AnalyzerRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderError records one analyzer provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
