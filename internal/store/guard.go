package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// DefaultWriteTimeout bounds a single background write.
const DefaultWriteTimeout = 10 * time.Second

// GuardOption is a functional option for [NewGuard].
type GuardOption func(*Guard)

// WithWriteTimeout overrides [DefaultWriteTimeout].
func WithWriteTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithOnError registers fn to be called after each dropped write. kind is
// "event" or "notification".
func WithOnError(fn func(kind string, err error)) GuardOption {
	return func(g *Guard) { g.onError = fn }
}

// Guard wraps the event and notification stores and makes every write
// fire-and-forget: the call returns immediately, the write runs on its own
// goroutine with a bounded context, and failures are logged and dropped.
// There is no retry queue; a failed write is lost.
//
// IsDegraded reports whether the most recent write failed.
//
// All methods are safe for concurrent use.
type Guard struct {
	events        EventStore
	notifications NotificationStore
	timeout       time.Duration
	onError       func(kind string, err error)

	degraded atomic.Bool
	wg       sync.WaitGroup
}

// NewGuard creates a Guard. Either store may be nil, in which case writes of
// that kind are discarded.
func NewGuard(events EventStore, notifications NotificationStore, opts ...GuardOption) *Guard {
	g := &Guard{
		events:        events,
		notifications: notifications,
		timeout:       DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// LogEvent schedules ev for writing.
func (g *Guard) LogEvent(ev types.NoiseEvent) {
	if g.events == nil {
		return
	}
	g.spawn("event", func(ctx context.Context) error {
		return g.events.LogEvent(ctx, ev)
	})
}

// SaveNotification schedules n for writing.
func (g *Guard) SaveNotification(n types.NotificationItem) {
	if g.notifications == nil {
		return
	}
	g.spawn("notification", func(ctx context.Context) error {
		_, err := g.notifications.SaveNotification(ctx, n)
		return err
	})
}

func (g *Guard) spawn(kind string, write func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		if err := write(ctx); err != nil {
			g.degraded.Store(true)
			slog.Warn("store guard: write failed, dropping", "kind", kind, "err", err)
			if g.onError != nil {
				g.onError(kind, err)
			}
			return
		}
		g.degraded.Store(false)
	}()
}

// Wait blocks until every scheduled write has finished or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDegraded reports whether the most recent write failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
