package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns instruments read through a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of an int64 counter whose attributes
// include every pair in match.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if hasAll(dp.Attributes, match) {
			total += dp.Value
		}
	}
	return total
}

// histogramCount returns the sample count of a histogram across points.
func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want Histogram[float64]", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func hasAll(set attribute.Set, match []attribute.KeyValue) bool {
	for _, kv := range match {
		if v, ok := set.Value(kv.Key); !ok || v != kv.Value {
			return false
		}
	}
	return true
}

func TestNewMetrics_AllInstruments(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	if m.Loudness == nil || m.InferenceDuration == nil || m.InferenceErrors == nil ||
		m.BreakerTransitions == nil || m.Alerts == nil || m.FramesSuppressed == nil ||
		m.PersistErrors == nil || m.ActiveSessions == nil || m.HTTPRequestDuration == nil {
		t.Fatalf("NewMetrics left an instrument unset: %+v", m)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record func(context.Context, *Metrics)
		metric string
		match  []attribute.KeyValue
		want   int64
	}{
		{
			name: "alerts by label",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordAlert(ctx, "Siren", "critical")
				m.RecordAlert(ctx, "Siren", "critical")
				m.RecordAlert(ctx, "Speech", "neutral")
			},
			metric: "noisewatch.alerts",
			match:  []attribute.KeyValue{attribute.String("label", "Siren"), attribute.String("class", "critical")},
			want:   2,
		},
		{
			name: "inference errors",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordInference(ctx, 0.5, "", errors.New("session closed"))
				m.RecordInference(ctx, 0.04, "Speech", nil)
			},
			metric: "noisewatch.inference.errors",
			want:   1,
		},
		{
			name: "breaker opened",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordBreakerTransition(ctx, "yamnet", "open")
				m.RecordBreakerTransition(ctx, "yamnet", "half-open")
				m.RecordBreakerTransition(ctx, "yamnet", "open")
			},
			metric: "noisewatch.classifier.breaker.transitions",
			match:  []attribute.KeyValue{attribute.String("backend", "yamnet"), attribute.String("state", "open")},
			want:   2,
		},
		{
			name: "persist errors by kind",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordPersistError(ctx, "event")
				m.RecordPersistError(ctx, "notification")
				m.RecordPersistError(ctx, "event")
			},
			metric: "noisewatch.persist.errors",
			match:  []attribute.KeyValue{attribute.String("kind", "event")},
			want:   2,
		},
		{
			name: "active sessions",
			record: func(ctx context.Context, m *Metrics) {
				m.ActiveSessions.Add(ctx, 1)
				m.ActiveSessions.Add(ctx, -1)
				m.ActiveSessions.Add(ctx, 1)
			},
			metric: "noisewatch.sessions.active",
			want:   1,
		},
		{
			name: "suppressed frames",
			record: func(ctx context.Context, m *Metrics) {
				m.FramesSuppressed.Add(ctx, 7)
			},
			metric: "noisewatch.frames.suppressed",
			want:   7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, reader := newTestMetrics(t)
			tt.record(context.Background(), m)
			if got := counterValue(t, collect(t, reader), tt.metric, tt.match...); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetrics_Histograms(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Loudness.Record(ctx, 72.5)
	m.Loudness.Record(ctx, 41)
	m.RecordInference(ctx, 0.031, "Speech", nil)
	m.RecordInference(ctx, 1, "", errors.New("timeout"))
	m.RecordHTTP(ctx, 0.002, "GET", "/api/live", 200)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"noisewatch.loudness":              2,
		"noisewatch.inference.duration":    1,
		"noisewatch.http.request.duration": 1,
	} {
		if got := histogramCount(t, rm, name); got != want {
			t.Errorf("%s count = %d, want %d", name, got, want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
