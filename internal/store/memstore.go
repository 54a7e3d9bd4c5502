package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// Compile-time interface assertions.
var (
	_ EventStore        = (*MemStore)(nil)
	_ NotificationStore = (*MemStore)(nil)
	_ SettingsStore     = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory implementation of every store
// interface. It is suitable for a single process without a database and for
// testing. The zero value is ready to use.
type MemStore struct {
	mu            sync.RWMutex
	events        []types.NoiseEvent
	notifications []types.NotificationItem
	settings      *Settings
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// LogEvent implements [EventStore].
func (s *MemStore) LogEvent(_ context.Context, ev types.NoiseEvent) error {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// EventsSince implements [EventStore].
func (s *MemStore) EventsSince(_ context.Context, since time.Time, limit int) ([]types.NoiseEvent, error) {
	limit = LimitOrDefault(limit)

	s.mu.RLock()
	out := make([]types.NoiseEvent, 0, len(s.events))
	for _, ev := range s.events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b types.NoiseEvent) int { return a.Timestamp.Compare(b.Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveNotification implements [NotificationStore].
func (s *MemStore) SaveNotification(_ context.Context, n types.NotificationItem) (types.NotificationItem, error) {
	if n.ID == "" {
		n.ID = NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return n, nil
}

// RecentNotifications implements [NotificationStore].
func (s *MemStore) RecentNotifications(_ context.Context, limit int) ([]types.NotificationItem, error) {
	limit = LimitOrDefault(limit)

	s.mu.RLock()
	out := slices.Clone(s.notifications)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b types.NotificationItem) int { return b.Timestamp.Compare(a.Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkViewed implements [NotificationStore].
func (s *MemStore) MarkViewed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Viewed = true
			return nil
		}
	}
	return ErrNotFound
}

// Settings implements [SettingsStore].
func (s *MemStore) Settings(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return DefaultSettings(), nil
	}
	return *s.settings, nil
}

// SaveSettings implements [SettingsStore].
func (s *MemStore) SaveSettings(_ context.Context, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return nil
}
