// Package badger persists user settings in an embedded Badger key-value
// store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"

	"github.com/MrWong99/noisewatch/internal/store"
)

// settingsKey holds the JSON-encoded [store.Settings].
var settingsKey = []byte("settings/v1")

var _ store.SettingsStore = (*SettingsStore)(nil)

// SettingsStore is a [store.SettingsStore] backed by Badger.
type SettingsStore struct {
	db *badger.DB
}

// Open opens (creating if needed) the Badger database in dir. An empty dir
// opens an in-memory database that is lost on Close.
func Open(dir string) (*SettingsStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("badger settings: create directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger settings: open: %w", err)
	}
	return &SettingsStore{db: db}, nil
}

// Settings implements [store.SettingsStore].
func (s *SettingsStore) Settings(_ context.Context) (store.Settings, error) {
	st := store.DefaultSettings()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.DefaultSettings(), nil
	}
	if err != nil {
		return store.DefaultSettings(), fmt.Errorf("badger settings: read: %w", err)
	}
	return st, nil
}

// SaveSettings implements [store.SettingsStore].
func (s *SettingsStore) SaveSettings(_ context.Context, st store.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("badger settings: marshal: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(settingsKey, data)
	}); err != nil {
		return fmt.Errorf("badger settings: write: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *SettingsStore) Close() error {
	return s.db.Close()
}
