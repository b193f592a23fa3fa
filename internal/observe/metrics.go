// Package observe provides application-wide observability primitives for the
// duplex voice pipeline: OpenTelemetry metrics and distributed tracing.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/voicefuture/duplex"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognizeDuration tracks speech-to-text transcription latency.
	RecognizeDuration metric.Float64Histogram

	// RespondDuration tracks response-generation latency.
	RespondDuration metric.Float64Histogram

	// SynthesizeDuration tracks text-to-speech synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// TurnDuration tracks the full end-of-speech to playback-start latency.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts captured utterances. Use with attribute:
	//   attribute.String("outcome", "transcribed"|"discarded"|"empty")
	Utterances metric.Int64Counter

	// Interruptions counts playbacks aborted by barge-in.
	Interruptions metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live duplex sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionsByState tracks live sessions bucketed by pipeline phase. Use
	// with attribute:
	//   attribute.String("state", ...)
	SessionsByState metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.RecognizeDuration, err = m.Float64Histogram("duplex.recognize.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RespondDuration, err = m.Float64Histogram("duplex.respond.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("duplex.synthesize.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("duplex.turn.duration",
		metric.WithDescription("Latency from end of user speech to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("duplex.utterances",
		metric.WithDescription("Total captured utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("duplex.interruptions",
		metric.WithDescription("Total playbacks aborted by barge-in."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("duplex.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("duplex.active_sessions",
		metric.WithDescription("Number of live duplex sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionsByState, err = m.Int64UpDownCounter("duplex.sessions_by_state",
		metric.WithDescription("Live duplex sessions by pipeline phase."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("duplex.http.request.duration",
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

// RecordUtterance records an utterance counter increment by outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordStateChange moves one session between pipeline-phase buckets of the
// sessions-by-state gauge. An empty prev only enters the next bucket; an
// empty next only leaves the prev bucket.
func (m *Metrics) RecordStateChange(ctx context.Context, prev, next string) {
	if prev != "" {
		m.SessionsByState.Add(ctx, -1,
			metric.WithAttributes(attribute.String("state", prev)))
	}
	if next != "" {
		m.SessionsByState.Add(ctx, 1,
			metric.WithAttributes(attribute.String("state", next)))
	}
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
