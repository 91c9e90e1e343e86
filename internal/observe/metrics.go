// Package observe provides application-wide observability primitives for
// visionvoice: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all visionvoice metrics.
const meterName = "github.com/MrWong99/visionvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture cycle ---

	// PhaseTransitions counts recording phase changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	PhaseTransitions metric.Int64Counter

	// TeardownAttempts counts calls to the device stop operation, including
	// retries.
	TeardownAttempts metric.Int64Counter

	// TeardownFailures counts teardowns that exhausted their retry budget.
	TeardownFailures metric.Int64Counter

	// StaleResults counts transcription results discarded because their
	// request was superseded.
	StaleResults metric.Int64Counter

	// --- Transcription ---

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// Transcriptions counts transcription calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"empty_audio")
	Transcriptions metric.Int64Counter

	// Commands counts classified transcripts. Use with attribute:
	//   attribute.String("command", ...)
	Commands metric.Int64Counter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram

	// ActiveStreams counts connected event stream clients.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets are histogram bucket boundaries (in seconds) sized for cloud
// and local transcription round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0, 30.0,
}

// NewMetrics creates all metric instruments from the given [metric.MeterProvider].
// Returns an error if any instrument fails to register.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.PhaseTransitions, err = m.Int64Counter("visionvoice.phase.transitions",
		metric.WithDescription("Recording phase transitions by source and target phase."),
	); err != nil {
		return nil, err
	}
	if met.TeardownAttempts, err = m.Int64Counter("visionvoice.teardown.attempts",
		metric.WithDescription("Device stop attempts including retries."),
	); err != nil {
		return nil, err
	}
	if met.TeardownFailures, err = m.Int64Counter("visionvoice.teardown.failures",
		metric.WithDescription("Teardowns that exhausted their retry budget."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("visionvoice.stale_results",
		metric.WithDescription("Transcription results discarded because a newer request superseded them."),
	); err != nil {
		return nil, err
	}

	if met.TranscriptionDuration, err = m.Float64Histogram("visionvoice.transcription.duration",
		metric.WithDescription("Speech-to-text transcription latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transcriptions, err = m.Int64Counter("visionvoice.transcriptions",
		metric.WithDescription("Transcription calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("visionvoice.commands",
		metric.WithDescription("Classified transcripts by command."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("visionvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("visionvoice.active_streams",
		metric.WithDescription("Number of connected event stream clients."),
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

// RecordPhaseTransition records a phase change from one phase name to another.
func (m *Metrics) RecordPhaseTransition(ctx context.Context, from, to string) {
	m.PhaseTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTranscription records the latency and outcome of one transcription.
func (m *Metrics) RecordTranscription(ctx context.Context, seconds float64, status string) {
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCommand records a classified transcript.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command", command)),
	)
}
