package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// probe serves path through a mux with h registered and decodes the report.
func probe(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	t.Parallel()
	code, rep := probe(t, New(Checker{Name: "postgres", Check: failing("down")}), "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK || len(rep.Checks) != 0 {
		t.Errorf("/healthz = %d %+v, want 200 ok without checks", code, rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "postgres", Check: ok},
				{Name: "classifier", Check: ok, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"postgres": StatusOK, "classifier": StatusOK},
		},
		{
			name: "optional failure degrades",
			checkers: []Checker{
				{Name: "postgres", Check: ok},
				{Name: "audio", Check: failing("no active session"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"postgres": StatusOK, "audio": StatusDegraded},
		},
		{
			name: "required failure fails",
			checkers: []Checker{
				{Name: "postgres", Check: failing("connection refused")},
				{Name: "audio", Check: failing("no active session"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"postgres": StatusFail, "audio": StatusDegraded},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := probe(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Errorf("/readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %+v, want %v", rep.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := rep.Checks[name].Status; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ReportsError(t *testing.T) {
	t.Parallel()
	_, rep := probe(t, New(Checker{Name: "postgres", Check: failing("connection refused")}), "/readyz")
	if got := rep.Checks["postgres"].Error; got != "connection refused" {
		t.Errorf("error = %q, want connection refused", got)
	}
}

func TestEvaluate_PerCheckTimeout(t *testing.T) {
	t.Parallel()
	h := New(Checker{
		Name:    "clickhouse",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	rep := h.Evaluate(context.Background())
	res := rep.Checks["clickhouse"]
	if res.Status != StatusFail || res.Error != context.DeadlineExceeded.Error() {
		t.Errorf("result = %+v, want failure from the deadline", res)
	}
	if res.LatencyMS < 20 {
		t.Errorf("latency = %dms, want at least the timeout", res.LatencyMS)
	}
}

func TestEvaluate_RunsConcurrently(t *testing.T) {
	t.Parallel()
	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	h := New(
		Checker{Name: "a", Check: slow},
		Checker{Name: "b", Check: slow},
		Checker{Name: "c", Check: slow},
	)

	start := time.Now()
	rep := h.Evaluate(context.Background())
	if rep.Status != StatusOK {
		t.Fatalf("status = %q", rep.Status)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want checks to overlap", peak.Load())
	}
	if elapsed := time.Since(start); elapsed >= 150*time.Millisecond {
		t.Errorf("Evaluate took %v, want the checks to overlap", elapsed)
	}
}
