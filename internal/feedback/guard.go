// Package feedback prevents the monitor from hearing its own alert sound.
//
// While an alert cue plays through the speaker the microphone picks it up,
// which would otherwise read as a loud noise and trigger the next alert. The
// [Guard] is engaged for the length of the cue plus a short tail; while it is
// engaged the monitor publishes the floor loudness and skips processing.
package feedback

import (
	"sync"
	"time"
)

const (
	// Tail is added to a known cue length before the guard disengages.
	Tail = 500 * time.Millisecond

	// FallbackDuration is used when the cue length cannot be determined.
	FallbackDuration = 3 * time.Second
)

// EngagementFor returns how long the guard should stay engaged for a cue of
// length cue. ok reports whether the cue length is known.
func EngagementFor(cue time.Duration, ok bool) time.Duration {
	if !ok || cue <= 0 {
		return FallbackDuration
	}
	return cue + Tail
}

// Option is a functional option for [New].
type Option func(*Guard)

// WithOnDisengage registers fn to run, on the timer goroutine, each time the
// guard disengages on its own. It is not called by [Guard.Stop].
func WithOnDisengage(fn func()) Option {
	return func(g *Guard) { g.onDisengage = fn }
}

// Guard is a one-shot suppression window. It is safe for concurrent use.
type Guard struct {
	onDisengage func()

	mu      sync.Mutex
	engaged bool
	gen     uint64
	timer   *time.Timer
	until   time.Time
}

// New creates a disengaged Guard.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Engage engages the guard for d. Engaging an already engaged guard replaces
// the pending disengage; the window never stacks.
func (g *Guard) Engage(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.engaged = true
	g.until = time.Now().Add(d)
	g.timer = time.AfterFunc(d, func() { g.expire(gen) })
}

// expire disengages the guard if no newer Engage superseded generation gen.
func (g *Guard) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.engaged {
		g.mu.Unlock()
		return
	}
	g.engaged = false
	g.timer = nil
	fn := g.onDisengage
	g.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// IsEngaged reports whether processing should currently be suppressed.
func (g *Guard) IsEngaged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engaged
}

// Remaining returns how long the guard stays engaged, zero when disengaged.
func (g *Guard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.engaged {
		return 0
	}
	return max(time.Until(g.until), 0)
}

// Stop disengages the guard immediately and cancels any pending timer.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.engaged = false
}
