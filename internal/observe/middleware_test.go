package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiMux mimics the shape of the noisewatch API: a parameterised route, a
// probe and a failing route.
func apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notifications/{id}/viewed", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return mux
}

// serve runs one request through Middleware(apiMux()) with fresh metrics and
// an in-memory tracer.
func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, metricdata.ResourceMetrics, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)

	rec := httptest.NewRecorder()
	Middleware(m)(apiMux()).ServeHTTP(rec, req)
	return rec, collect(t, reader), exp
}

func TestMiddleware_CorrelationIDHeader(t *testing.T) {
	rec, _, exp := serve(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	cid := rec.Header().Get("X-Correlation-ID")
	if len(cid) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want a 32-char trace id", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace id = %s, header = %s", got, cid)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	rec, _, _ := serve(t, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_NamesByRoutePattern(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/0b6f3c1e/viewed", nil)
	rec, rm, exp := serve(t, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	const wantName = "HTTP POST /api/notifications/{id}/viewed"
	if spans[0].Name != wantName {
		t.Errorf("span name = %q, want %q", spans[0].Name, wantName)
	}
	if v, ok := attrValue(spans[0].Attributes, "http.route"); !ok || v.AsString() != "/api/notifications/{id}/viewed" {
		t.Errorf("http.route = %q (present %v)", v.AsString(), ok)
	}

	met := findMetric(rm, "noisewatch.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration data = %+v, want one histogram point", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	wantAttrs := map[attribute.Key]string{"method": "POST", "route": "/api/notifications/{id}/viewed"}
	for k, want := range wantAttrs {
		if v, ok := dp.Attributes.Value(k); !ok || v.AsString() != want {
			t.Errorf("metric attribute %s = %q, want %q", k, v.AsString(), want)
		}
	}
	if v, ok := dp.Attributes.Value("status"); !ok || v.AsInt64() != http.StatusNoContent {
		t.Errorf("metric attribute status = %d, want 204", v.AsInt64())
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	rec, _, exp := serve(t, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET unmatched" {
		t.Errorf("spans = %+v, want one named %q", spans, "HTTP GET unmatched")
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	_, _, exp := serve(t, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
	if v, ok := attrValue(spans[0].Attributes, "http.response.status_code"); !ok || v.AsInt64() != 500 {
		t.Errorf("status code attribute = %d (present %v), want 500", v.AsInt64(), ok)
	}
}

func TestMiddleware_WriterSupportsUpgrade(t *testing.T) {
	m, _ := newTestMetrics(t)
	useTestTracer(t)

	var unwrapped, hijacker bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, _ *http.Request) {
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		unwrapped = ok && u.Unwrap() != nil
		_, hijacker = w.(http.Hijacker)
		w.WriteHeader(http.StatusNoContent)
	})

	Middleware(m)(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	if !unwrapped {
		t.Error("wrapped writer does not expose Unwrap")
	}
	if !hijacker {
		t.Error("wrapped writer does not expose Hijack")
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	t.Parallel()
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a recorder without hijack support returned nil error")
	}
}

func TestRouteOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		want    string
	}{
		{"", unmatchedRoute},
		{"GET /api/live", "/api/live"},
		{"/metrics", "/metrics"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Pattern = tt.pattern
		if got := routeOf(r); got != tt.want {
			t.Errorf("routeOf(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
