package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errModel = errors.New("onnx: invalid output tensor")

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func fail(context.Context) error { return errModel }
func pass(context.Context) error { return nil }

// tripped returns a breaker that has just opened.
func tripped(t *testing.T, clk *fakeClock, probes int) *Breaker {
	t.Helper()
	b := NewBreaker(BreakerConfig{Name: "yamnet", MaxFailures: 2, Cooldown: 10 * time.Second, Probes: probes, Now: clk.Now})
	for range 2 {
		_ = b.Do(context.Background(), fail)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v after two failures, want open", b.State())
	}
	return b
}

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{})
	if b.cfg.MaxFailures != 5 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 2 {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	b := NewBreaker(BreakerConfig{MaxFailures: 3, Now: clk.Now})

	ctx := context.Background()
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, pass) // breaks the run
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v with only two consecutive failures, want closed", b.State())
	}
	if err := b.Do(ctx, fail); !errors.Is(err, errModel) {
		t.Errorf("tripping call returned %v, want the backend error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v after three consecutive failures, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestBreaker_CancelledCallsDoNotCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s := b.Status(); s.State != StateClosed || s.Failures != 0 {
		t.Errorf("status after cancelled call = %+v, want closed with no failures", s)
	}
}

func TestBreaker_HalfOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		probes []func(context.Context) error
		want   State
	}{
		{"enough successes close", []func(context.Context) error{pass, pass}, StateClosed},
		{"one success stays half-open", []func(context.Context) error{pass}, StateHalfOpen},
		{"failed probe re-opens", []func(context.Context) error{pass, fail}, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			b := tripped(t, clk, 2)

			clk.Advance(9 * time.Second)
			if err := b.Do(context.Background(), pass); !errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("call during cooldown returned %v, want ErrCircuitOpen", err)
			}
			clk.Advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after cooldown = %v, want half-open", b.State())
			}

			for _, p := range tt.probes {
				_ = b.Do(context.Background(), p)
			}
			if got := b.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	b := tripped(t, clk, 1)
	clk.Advance(10 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(context.Background(), pass); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe returned %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v after the probe succeeded, want closed", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()

	type change struct{ from, to State }
	var got []change
	b := NewBreaker(BreakerConfig{
		Name:        "yamnet",
		MaxFailures: 1,
		Cooldown:    time.Second,
		Probes:      1,
		Now:         clk.Now,
		OnStateChange: func(name string, from, to State) {
			if name != "yamnet" {
				t.Errorf("callback name = %q", name)
			}
			got = append(got, change{from, to})
		},
	})

	_ = b.Do(context.Background(), fail)
	clk.Advance(time.Second)
	_ = b.Do(context.Background(), pass)
	b.Reset() // already closed, no transition

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBreaker_StatusAndReset(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	b := tripped(t, clk, 1)

	s := b.Status()
	if s.Name != "yamnet" || s.State != StateOpen || s.Failures != 2 || !s.OpenedAt.Equal(clk.Now()) {
		t.Errorf("Status() = %+v", s)
	}

	b.Reset()
	if s := b.Status(); s.State != StateClosed || s.Failures != 0 {
		t.Errorf("Status() after Reset = %+v, want closed with no failures", s)
	}
	if err := b.Do(context.Background(), pass); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(7):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
