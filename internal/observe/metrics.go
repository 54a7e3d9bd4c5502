// Package observe carries the telemetry of noisewatch: OpenTelemetry metrics
// and traces, session-aware structured logging, and the HTTP middleware that
// ties them to API requests.
//
// Instruments live in [Metrics]. Production code uses [DefaultMetrics], which
// is bound to the global meter provider installed by [InitProvider] and
// scraped through /metrics. Tests build their own with [NewMetrics].
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all noisewatch metrics.
const meterName = "github.com/MrWong99/noisewatch"

// Metrics holds the instruments recorded by the pipeline and the API.
type Metrics struct {
	// Loudness samples every published block, in dB.
	Loudness metric.Float64Histogram

	// InferenceDuration is classifier latency per window, labelled by the
	// resulting label.
	InferenceDuration metric.Float64Histogram

	// InferenceErrors counts windows no backend could classify.
	InferenceErrors metric.Int64Counter

	// BreakerTransitions counts classifier backend breaker changes by
	// backend and target state.
	BreakerTransitions metric.Int64Counter

	// Alerts counts fired alerts by label and policy class.
	Alerts metric.Int64Counter

	// FramesSuppressed counts blocks skipped while the alert cue plays.
	FramesSuppressed metric.Int64Counter

	// PersistErrors counts dropped writes by kind ("event", "notification").
	PersistErrors metric.Int64Counter

	// ActiveSessions is 1 while a monitoring session runs.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is API latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// Bucket boundaries. Inference is sized for one CPU run of a small model;
// loudness spans the calibrated 30 to 100 dB scale.
var (
	latencyBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	loudnessBuckets = []float64{30, 40, 50, 60, 70, 80, 90, 95, 100}
	httpBuckets     = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// instruments creates instruments on one meter and collects the first
// failure of each.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) histogram(name, desc, unit string, buckets []float64) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}

	met := &Metrics{
		Loudness: in.histogram("noisewatch.loudness",
			"Smoothed loudness of each processed audio block.", "dB", loudnessBuckets),
		InferenceDuration: in.histogram("noisewatch.inference.duration",
			"Latency of one classification window.", "s", latencyBuckets),
		InferenceErrors: in.counter("noisewatch.inference.errors",
			"Windows that no classifier backend could label."),
		BreakerTransitions: in.counter("noisewatch.classifier.breaker.transitions",
			"Classifier backend breaker state changes."),
		Alerts: in.counter("noisewatch.alerts",
			"Fired alerts by label and policy class."),
		FramesSuppressed: in.counter("noisewatch.frames.suppressed",
			"Audio blocks skipped while the alert cue plays."),
		PersistErrors: in.counter("noisewatch.persist.errors",
			"Dropped persistence writes by kind."),
		HTTPRequestDuration: in.histogram("noisewatch.http.request.duration",
			"API request latency by method, route and status.", "s", httpBuckets),
	}

	sessions, err := in.meter.Int64UpDownCounter("noisewatch.sessions.active",
		metric.WithDescription("Running monitoring sessions."))
	in.errs = append(in.errs, err)
	met.ActiveSessions = sessions

	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] bound to the global meter
// provider. The global provider delegates, so instruments created before
// [InitProvider] still reach the exporter it installs.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAlert counts a fired alert.
func (m *Metrics) RecordAlert(ctx context.Context, label, class string) {
	m.Alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("label", label),
		attribute.String("class", class),
	))
}

// RecordInference records one classification. A failed run is counted as an
// error and kept out of the latency histogram.
func (m *Metrics) RecordInference(ctx context.Context, seconds float64, label string, err error) {
	if err != nil {
		m.InferenceErrors.Add(ctx, 1)
		return
	}
	m.InferenceDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("label", label)))
}

// RecordBreakerTransition counts a classifier backend moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("state", state),
	))
}

// RecordPersistError counts a dropped write of kind.
func (m *Metrics) RecordPersistError(ctx context.Context, kind string) {
	m.PersistErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordHTTP records one served API request under its route pattern.
func (m *Metrics) RecordHTTP(ctx context.Context, seconds float64, method, route string, status int) {
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
