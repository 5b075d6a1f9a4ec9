// Package observe provides application-wide observability primitives for
// songbird: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all songbird metrics.
const meterName = "github.com/MrWong99/songbird"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks how long query resolution takes. Use with attributes:
	//   attribute.String("resolver", ...), attribute.String("status", ...)
	ResolveDuration metric.Float64Histogram

	// TranscodeOpenDuration tracks the time until a transcoded stream is ready.
	TranscodeOpenDuration metric.Float64Histogram

	// PlayDuration tracks how long each track actually streamed. Use with attribute:
	//   attribute.String("outcome", ...)
	PlayDuration metric.Float64Histogram

	// --- Counters ---

	// Commands counts orchestrator commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("result", ...)
	Commands metric.Int64Counter

	// Tracks counts finished tracks. Use with attribute:
	//   attribute.String("outcome", ...): completed, skipped, failed or interrupted
	Tracks metric.Int64Counter

	// --- Error counters ---

	// TranscodeErrors counts transcoder failures.
	TranscodeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// EventSubscribers tracks the number of live event-stream clients.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound operations such as resolving and spawning transcoders.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// playBuckets defines histogram bucket boundaries (in seconds) for track
// lengths.
var playBuckets = []float64{
	1, 5, 15, 30, 60, 120, 180, 300, 600, 1200, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("songbird.resolve.duration",
		metric.WithDescription("Latency of resolving a user query to tracks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscodeOpenDuration, err = m.Float64Histogram("songbird.transcode.open.duration",
		metric.WithDescription("Latency until a transcoded PCM stream is ready."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlayDuration, err = m.Float64Histogram("songbird.track.play.duration",
		metric.WithDescription("Time each track spent streaming, by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Commands, err = m.Int64Counter("songbird.commands",
		metric.WithDescription("Total playback commands by command and result."),
	); err != nil {
		return nil, err
	}
	if met.Tracks, err = m.Int64Counter("songbird.tracks",
		metric.WithDescription("Total tracks finished by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranscodeErrors, err = m.Int64Counter("songbird.transcode.errors",
		metric.WithDescription("Total transcoder failures."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("songbird.active_sessions",
		metric.WithDescription("Number of connected voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("songbird.event_subscribers",
		metric.WithDescription("Number of connected event-stream clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("songbird.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordCommand records one orchestrator command with its result
// ("ok" or an error class such as "wrong_channel").
func (m *Metrics) RecordCommand(ctx context.Context, command, result string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("result", result),
		),
	)
}

// RecordTrack records a finished track together with how long it streamed.
func (m *Metrics) RecordTrack(ctx context.Context, outcome string, played time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Tracks.Add(ctx, 1, attrs)
	m.PlayDuration.Record(ctx, played.Seconds(), attrs)
}

// RecordResolve records the latency of one resolver call.
func (m *Metrics) RecordResolve(ctx context.Context, resolver, status string, d time.Duration) {
	m.ResolveDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("resolver", resolver),
			attribute.String("status", status),
		),
	)
}
