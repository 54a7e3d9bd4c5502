// Package mock provides test doubles for the store interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	events := &mock.EventStore{LogEventErr: errors.New("db down")}
//
//	// inject events into the system under test …
//
//	if got := events.CallCount("LogEvent"); got != 1 {
//	    t.Errorf("expected 1 LogEvent call, got %d", got)
//	}
package mock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// recorder is embedded by every mock.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EventStore
// ─────────────────────────────────────────────────────────────────────────────

// EventStore is a configurable test double for [store.EventStore].
type EventStore struct {
	recorder

	// LogEventErr is returned by LogEvent when non-nil.
	LogEventErr error

	// LogEventBlock, when non-nil, makes LogEvent wait until it is closed or
	// the context is done.
	LogEventBlock chan struct{}

	// EventsSinceResult is returned by EventsSince.
	EventsSinceResult []types.NoiseEvent

	// EventsSinceErr is returned by EventsSince when non-nil.
	EventsSinceErr error
}

// LogEvent implements [store.EventStore].
func (m *EventStore) LogEvent(ctx context.Context, ev types.NoiseEvent) error {
	m.mu.Lock()
	m.record("LogEvent", ev)
	block, err := m.LogEventBlock, m.LogEventErr
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// EventsSince implements [store.EventStore].
func (m *EventStore) EventsSince(_ context.Context, since time.Time, limit int) ([]types.NoiseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EventsSince", since, limit)
	out := make([]types.NoiseEvent, len(m.EventsSinceResult))
	copy(out, m.EventsSinceResult)
	return out, m.EventsSinceErr
}

// Events returns the events passed to LogEvent, in call order.
func (m *EventStore) Events() []types.NoiseEvent {
	var out []types.NoiseEvent
	for _, c := range m.Calls() {
		if c.Method == "LogEvent" {
			out = append(out, c.Args[0].(types.NoiseEvent))
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// NotificationStore
// ─────────────────────────────────────────────────────────────────────────────

// NotificationStore is a configurable test double for [store.NotificationStore].
type NotificationStore struct {
	recorder

	// SaveErr is returned by SaveNotification when non-nil.
	SaveErr error

	// RecentResult is returned by RecentNotifications.
	RecentResult []types.NotificationItem

	// RecentErr is returned by RecentNotifications when non-nil.
	RecentErr error

	// MarkViewedErr is returned by MarkViewed when non-nil.
	MarkViewedErr error
}

// SaveNotification implements [store.NotificationStore]. The returned item
// gets the ID "mock-<n>" when n.ID is empty.
func (m *NotificationStore) SaveNotification(_ context.Context, n types.NotificationItem) (types.NotificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveNotification", n)
	if m.SaveErr != nil {
		return types.NotificationItem{}, m.SaveErr
	}
	if n.ID == "" {
		n.ID = "mock-" + strconv.Itoa(len(m.calls))
	}
	return n, nil
}

// RecentNotifications implements [store.NotificationStore].
func (m *NotificationStore) RecentNotifications(_ context.Context, limit int) ([]types.NotificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RecentNotifications", limit)
	out := make([]types.NotificationItem, len(m.RecentResult))
	copy(out, m.RecentResult)
	return out, m.RecentErr
}

// MarkViewed implements [store.NotificationStore].
func (m *NotificationStore) MarkViewed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("MarkViewed", id)
	return m.MarkViewedErr
}

// Saved returns the notifications passed to SaveNotification, in call order.
func (m *NotificationStore) Saved() []types.NotificationItem {
	var out []types.NotificationItem
	for _, c := range m.Calls() {
		if c.Method == "SaveNotification" {
			out = append(out, c.Args[0].(types.NotificationItem))
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// SettingsStore
// ─────────────────────────────────────────────────────────────────────────────

// SettingsStore is a configurable test double for [store.SettingsStore].
type SettingsStore struct {
	recorder

	// SettingsResult is returned by Settings.
	SettingsResult store.Settings

	// SettingsErr is returned by Settings when non-nil.
	SettingsErr error

	// SaveErr is returned by SaveSettings when non-nil.
	SaveErr error
}

// Settings implements [store.SettingsStore].
func (m *SettingsStore) Settings(_ context.Context) (store.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Settings")
	return m.SettingsResult, m.SettingsErr
}

// SaveSettings implements [store.SettingsStore]. On success the saved value
// becomes the next SettingsResult.
func (m *SettingsStore) SaveSettings(_ context.Context, s store.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveSettings", s)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.SettingsResult = s
	return nil
}

// Compile-time interface assertions.
var (
	_ store.EventStore        = (*EventStore)(nil)
	_ store.NotificationStore = (*NotificationStore)(nil)
	_ store.SettingsStore     = (*SettingsStore)(nil)
)
