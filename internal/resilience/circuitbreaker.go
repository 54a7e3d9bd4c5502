// Package resilience keeps classification running when an inference backend
// misbehaves.
//
// A [Breaker] stops calling a backend after repeated failures and probes it
// again after a cooldown. [ClassifierFallback] puts one breaker in front of
// every configured backend and serves each window from the first healthy one.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the backend is benched.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown ends.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. One failed
	// probe re-opens the breaker; enough successful ones close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults below.
type BreakerConfig struct {
	// Name identifies the backend in logs and callbacks.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	// Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// Probes is both the number of concurrent half-open calls allowed and the
	// number of successes needed to close again. Default: 2.
	Probes int

	// OnStateChange is called after every transition with the breaker lock
	// held. It must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c *BreakerConfig) applyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 2
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// BreakerStatus is a point-in-time view of a [Breaker].
type BreakerStatus struct {
	Name     string
	State    State
	Failures int
	// OpenedAt is when the breaker last tripped. Zero if it never has.
	OpenedAt time.Time
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   int
	successes int
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.applyDefaults()
	return &Breaker{cfg: cfg}
}

// Do calls fn unless the breaker is open. A failure that happened because ctx
// was cancelled is returned but not counted against the backend.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(probe, err != nil && ctx.Err() == nil, err == nil)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.probing, b.successes = 0, 0
		b.setState(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probing >= b.cfg.Probes {
			return false, ErrCircuitOpen
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call. Calls that neither failed
// nor succeeded (cancelled) only release their probe slot.
func (b *Breaker) settle(probe, failed, succeeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing--
		// A concurrent probe may already have re-opened the breaker.
		if b.state != StateHalfOpen {
			return
		}
		switch {
		case failed:
			b.trip()
		case succeeded:
			b.successes++
			if b.successes >= b.cfg.Probes {
				b.failures = 0
				b.setState(StateClosed)
			}
		}
		return
	}

	switch {
	case failed:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	case succeeded && b.state == StateClosed:
		b.failures = 0
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.openedAt = b.cfg.Now()
	b.setState(StateOpen)
}

// setState records a transition and reports it. b.mu must be held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: breaker state changed",
		"backend", b.cfg.Name,
		"from", from.String(),
		"to", to.String(),
		"failures", b.failures,
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.effectiveState()
}

func (b *Breaker) effectiveState() State {
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Status returns a snapshot for health reporting.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Name:     b.cfg.Name,
		State:    b.effectiveState(),
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.probing, b.successes = 0, 0, 0
	b.setState(StateClosed)
}
