// Package store defines the persistence boundary of noisewatch.
//
// Three concerns are persisted:
//
//   - [EventStore]: the append-only log of [types.NoiseEvent] readings.
//   - [NotificationStore]: the user-facing alert history.
//   - [SettingsStore]: the small set of user settings the alert engine reads
//     on every tick.
//
// Backends live in sub-packages (store/postgres, store/badger,
// store/clickhouse). [MemStore] is an in-process implementation used when no
// database is configured. The monitor never writes through these interfaces
// directly; it goes through a [Guard] so a failing backend cannot stall the
// audio loop.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// ErrNotFound is returned when a record with the requested ID does not exist.
var ErrNotFound = errors.New("store: not found")

// DefaultListLimit caps list queries that pass a zero limit.
const DefaultListLimit = 100

// EventStore persists noise events.
type EventStore interface {
	// LogEvent appends ev. An empty ev.ID is assigned by the caller through
	// [NewID] or by the backend.
	LogEvent(ctx context.Context, ev types.NoiseEvent) error

	// EventsSince returns events with Timestamp >= since, oldest first, at
	// most limit of them (0 means [DefaultListLimit]).
	EventsSince(ctx context.Context, since time.Time, limit int) ([]types.NoiseEvent, error)
}

// NotificationStore persists the alert history.
type NotificationStore interface {
	// SaveNotification stores n and returns it with its ID assigned.
	SaveNotification(ctx context.Context, n types.NotificationItem) (types.NotificationItem, error)

	// RecentNotifications returns up to limit notifications, newest first.
	RecentNotifications(ctx context.Context, limit int) ([]types.NotificationItem, error)

	// MarkViewed flags the notification id as viewed. Returns [ErrNotFound]
	// for an unknown id.
	MarkViewed(ctx context.Context, id string) error
}

// Settings is the persisted user configuration.
type Settings struct {
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	SelectedProfileID    string `json:"selectedProfileId,omitempty"`
}

// DefaultSettings is what a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{NotificationsEnabled: true}
}

// SettingsStore persists [Settings].
type SettingsStore interface {
	// Settings returns the stored settings, or [DefaultSettings] when none
	// were saved yet.
	Settings(ctx context.Context) (Settings, error)

	// SaveSettings replaces the stored settings.
	SaveSettings(ctx context.Context, s Settings) error
}

// NewID returns a new random record identifier.
func NewID() string {
	return uuid.NewString()
}

// LimitOrDefault normalises a caller-supplied list limit.
func LimitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
