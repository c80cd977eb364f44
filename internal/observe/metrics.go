// Package observe provides application-wide observability primitives for
// modelmixer: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"errors"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// meterName is the instrumentation scope name used for all modelmixer metrics.
const meterName = "github.com/MrWong99/modelmixer"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
//
// Metrics implements [mixer.Observer].
type Metrics struct {
	// --- Provider attempts ---

	// ProviderAttempts counts single provider attempts. Attributes:
	//   provider, kind, status ("ok" | "error"), probe ("true" | "false")
	ProviderAttempts metric.Int64Counter

	// ProviderErrors counts failed attempts. Attributes:
	//   provider, reason ("http" | "timeout" | "network")
	ProviderErrors metric.Int64Counter

	// AttemptDuration tracks the latency of single provider attempts.
	AttemptDuration metric.Float64Histogram

	// --- Mixer calls ---

	// Calls counts finished mixer calls. Attributes:
	//   strategy, status ("ok" | "exhausted" | "provider_error" | "config_error")
	Calls metric.Int64Counter

	// CallDuration tracks end-to-end call latency including fallback.
	CallDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   method, path, status
	HTTPRequestDuration metric.Float64Histogram
}

var _ mixer.Observer = (*Metrics)(nil)

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// model inference latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProviderAttempts, err = m.Int64Counter("modelmixer.provider.attempts",
		metric.WithDescription("Provider attempts by provider, kind, status and probe flag."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("modelmixer.provider.errors",
		metric.WithDescription("Failed provider attempts by provider and reason."),
	); err != nil {
		return nil, err
	}
	if met.AttemptDuration, err = m.Float64Histogram("modelmixer.provider.attempt.duration",
		metric.WithDescription("Latency of a single provider attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Calls, err = m.Int64Counter("modelmixer.calls",
		metric.WithDescription("Mixer calls by strategy and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("modelmixer.call.duration",
		metric.WithDescription("End-to-end mixer call latency including fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("modelmixer.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
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

// ObserveAttempt implements [mixer.Observer].
func (m *Metrics) ObserveAttempt(ctx context.Context, a mixer.Attempt) {
	status := "ok"
	if a.Err != nil {
		status = "error"
	}
	m.ProviderAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", a.ProviderID),
			attribute.String("kind", string(a.Kind)),
			attribute.String("status", status),
			attribute.String("probe", strconv.FormatBool(a.Probe)),
		),
	)
	m.AttemptDuration.Record(ctx, a.Duration.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", a.ProviderID),
			attribute.String("status", status),
		),
	)
	if a.Err != nil {
		m.RecordProviderError(ctx, a.ProviderID, errorReason(a.Err))
	}
}

// ObserveCall implements [mixer.Observer].
func (m *Metrics) ObserveCall(ctx context.Context, c mixer.CallOutcome) {
	m.Calls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", string(c.Strategy)),
			attribute.String("status", CallStatus(c.Err)),
		),
	)
	m.CallDuration.Record(ctx, c.Duration.Seconds(),
		metric.WithAttributes(attribute.String("strategy", string(c.Strategy))),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, reason string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("reason", reason),
		),
	)
}

// CallStatus classifies a mixer call error into a low-cardinality label.
func CallStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mixer.ErrConfiguration):
		return "config_error"
	case errors.Is(err, mixer.ErrAllFailed):
		return "exhausted"
	default:
		return "provider_error"
	}
}

func errorReason(err error) string {
	var pe *mixer.ProviderError
	if errors.As(err, &pe) {
		return pe.Reason()
	}
	return "network"
}
