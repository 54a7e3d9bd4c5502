package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/store"
)

// ErrSettingsNotLoaded is returned by [Settings.Snapshot] before the first
// successful [Settings.Load] or write.
var ErrSettingsNotLoaded = errors.New("profile: settings not loaded")

// Settings combines the persisted user settings with the catalog to feed the
// alert engine. It implements [alert.Settings].
//
// The engine reads on every audio cycle, so [Settings.Snapshot] serves an
// in-memory copy. The copy is refreshed by [Settings.Load] and by every
// write made through Settings.
type Settings struct {
	store   store.SettingsStore
	catalog *Catalog

	writeMu sync.Mutex // serialises read-modify-write against the store
	current atomic.Pointer[store.Settings]
}

// NewSettings returns a Settings backed by st that resolves profiles in
// catalog. Call [Settings.Load] before handing it to an engine.
func NewSettings(st store.SettingsStore, catalog *Catalog) *Settings {
	return &Settings{store: st, catalog: catalog}
}

// Load reads the stored settings into memory. On failure the previous copy
// is kept.
func (s *Settings) Load(ctx context.Context) error {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("profile: read settings: %w", err)
	}
	s.current.Store(&st)
	return nil
}

// Snapshot implements [alert.Settings] without touching the store. A
// selected id that is no longer in the catalog reads as no selection.
func (s *Settings) Snapshot() (alert.Snapshot, error) {
	st := s.current.Load()
	if st == nil {
		return alert.Snapshot{}, ErrSettingsNotLoaded
	}
	snap := alert.Snapshot{NotificationsEnabled: st.NotificationsEnabled}
	if p, ok := s.catalog.Get(st.SelectedProfileID); ok {
		snap.ProfileName = p.Name
		snap.Threshold = p.Threshold
	}
	return snap, nil
}

// Selected returns the currently selected profile, if any.
func (s *Settings) Selected(ctx context.Context) (Profile, bool, error) {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return Profile{}, false, fmt.Errorf("profile: read settings: %w", err)
	}
	p, ok := s.catalog.Get(st.SelectedProfileID)
	return p, ok, nil
}

// Select resolves name with [Catalog.Find] and persists it as the selected
// profile. An empty name clears the selection.
func (s *Settings) Select(ctx context.Context, name string) (Profile, error) {
	var p Profile
	if name != "" {
		var err error
		if p, err = s.catalog.Find(name); err != nil {
			return Profile{}, err
		}
	}
	err := s.update(ctx, func(st *store.Settings) { st.SelectedProfileID = p.ID })
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SetNotificationsEnabled persists the notifications flag.
func (s *Settings) SetNotificationsEnabled(ctx context.Context, on bool) error {
	return s.update(ctx, func(st *store.Settings) { st.NotificationsEnabled = on })
}

// update applies change to the stored settings and publishes the result.
func (s *Settings) update(ctx context.Context, change func(*store.Settings)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	st, err := s.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("profile: read settings: %w", err)
	}
	change(&st)
	if err := s.store.SaveSettings(ctx, st); err != nil {
		return fmt.Errorf("profile: save settings: %w", err)
	}
	s.current.Store(&st)
	return nil
}
