package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// LogEvent implements [store.EventStore]. Writing the same ID twice is a
// no-op so a retried write cannot duplicate an event.
func (s *Store) LogEvent(ctx context.Context, ev types.NoiseEvent) error {
	const q = `
		INSERT INTO noise_events (id, timestamp, decibel_level, is_alert, noise_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if ev.ID == "" {
		ev.ID = store.NewID()
	}
	_, err := s.pool.Exec(ctx, q,
		ev.ID,
		ev.Timestamp,
		ev.DecibelLevel,
		ev.IsAlert,
		string(ev.NoiseType),
	)
	if err != nil {
		return fmt.Errorf("event store: log event: %w", err)
	}
	return nil
}

// EventsSince implements [store.EventStore].
func (s *Store) EventsSince(ctx context.Context, since time.Time, limit int) ([]types.NoiseEvent, error) {
	const q = `
		SELECT id, timestamp, decibel_level, is_alert, noise_type
		FROM   noise_events
		WHERE  timestamp >= $1
		ORDER  BY timestamp
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, since, store.LimitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("event store: events since: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.NoiseEvent, error) {
		var (
			ev    types.NoiseEvent
			label string
		)
		if err := row.Scan(&ev.ID, &ev.Timestamp, &ev.DecibelLevel, &ev.IsAlert, &label); err != nil {
			return types.NoiseEvent{}, err
		}
		ev.NoiseType = types.NoiseLabel(label)
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("event store: scan events: %w", err)
	}
	return events, nil
}
