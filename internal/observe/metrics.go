// Package observe provides application-wide observability primitives for
// Kojo: OpenTelemetry metrics, distributed tracing, trace-aware logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so the moderation counters
// can be scraped via /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kojo metrics.
const meterName = "github.com/MrWong99/kojo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ClassifyDuration tracks one classifier call. Attribute "kind" is one of
	// text, url, image, video_meta.
	ClassifyDuration metric.Float64Histogram

	// MediaDuration tracks whole video analyses including download and
	// frame extraction.
	MediaDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text latency per utterance.
	TranscribeDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Verdicts counts classification results by kind, category and action.
	Verdicts metric.Int64Counter

	// Enforcements counts enforcement attempts by action and outcome.
	Enforcements metric.Int64Counter

	// CacheLookups counts verdict cache lookups by result (hit or miss).
	CacheLookups metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	BreakerTransitions metric.Int64Counter

	// VoiceCaptures counts finished utterance captures by status.
	VoiceCaptures metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceSessions tracks the number of joined voice channels.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Classifier
// calls are dominated by LLM round trips; video analysis can take tens of
// seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.ClassifyDuration, "kojo.classify.duration", "Latency of a single classifier call."},
		{&met.MediaDuration, "kojo.media.duration", "Latency of a full video analysis."},
		{&met.TranscribeDuration, "kojo.transcribe.duration", "Latency of speech-to-text per utterance."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "kojo.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "kojo.provider.errors", "Total provider errors by provider and kind."},
		{&met.Verdicts, "kojo.verdicts", "Classification results by content kind, category and action."},
		{&met.Enforcements, "kojo.enforcements", "Enforcement attempts by action and outcome."},
		{&met.CacheLookups, "kojo.cache.lookups", "Verdict cache lookups by result."},
		{&met.BreakerTransitions, "kojo.breaker.transitions", "Circuit breaker state changes by breaker and target state."},
		{&met.VoiceCaptures, "kojo.voice.captures", "Finished utterance captures by status."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("kojo.voice.active_sessions",
		metric.WithDescription("Number of voice channels the bot is listening in."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("kojo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordVerdict records one classification outcome.
func (m *Metrics) RecordVerdict(ctx context.Context, kind, category, action string) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("category", category),
			attribute.String("action", action),
		),
	)
}

// RecordEnforcement records one enforcement attempt. Outcome is "ok",
// "skipped" or "error".
func (m *Metrics) RecordEnforcement(ctx context.Context, action, outcome string) {
	m.Enforcements.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCacheLookup records a verdict cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBreakerTransition records a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", name),
			attribute.String("state", to),
		),
	)
}

// RecordVoiceCapture records one finished utterance capture.
func (m *Metrics) RecordVoiceCapture(ctx context.Context, status string) {
	m.VoiceCaptures.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
