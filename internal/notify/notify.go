// Package notify pushes fired alerts and live loudness to external channels:
// MQTT topics for home automation, WebSocket clients for dashboards, and any
// other [Notifier] such as the Discord alert sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/noisewatch/internal/alert"
)

// Notifier delivers one fired alert.
type Notifier interface {
	Notify(ctx context.Context, d alert.Decision) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, d alert.Decision) error

// Notify implements [Notifier].
func (f NotifierFunc) Notify(ctx context.Context, d alert.Decision) error { return f(ctx, d) }

// Fanout delivers each alert to several notifiers concurrently. A failing
// sink does not stop the others.
type Fanout struct {
	mu    sync.RWMutex
	sinks map[string]Notifier
}

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{sinks: make(map[string]Notifier)}
}

// Add registers n under name, replacing any sink with the same name.
func (f *Fanout) Add(name string, n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[name] = n
}

// Remove unregisters the sink called name.
func (f *Fanout) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, name)
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Notify implements [Notifier]. It waits for every sink and returns the
// joined errors, each prefixed with the sink name.
func (f *Fanout) Notify(ctx context.Context, d alert.Decision) error {
	f.mu.RLock()
	sinks := make(map[string]Notifier, len(f.sinks))
	for name, n := range f.sinks {
		sinks[name] = n
	}
	f.mu.RUnlock()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for name, n := range sinks {
		g.Go(func() error {
			start := time.Now()
			err := n.Notify(ctx, d)
			if err != nil {
				slog.Warn("notify: sink failed", "sink", name, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				return nil
			}
			slog.Debug("notify: delivered", "sink", name, "duration", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
