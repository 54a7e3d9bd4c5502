package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// SaveNotification implements [store.NotificationStore].
func (s *Store) SaveNotification(ctx context.Context, n types.NotificationItem) (types.NotificationItem, error) {
	const q = `
		INSERT INTO notifications (id, title, message, timestamp, viewed, noise_type, decibel_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if n.ID == "" {
		n.ID = store.NewID()
	}
	_, err := s.pool.Exec(ctx, q,
		n.ID,
		n.Title,
		n.Message,
		n.Timestamp,
		n.Viewed,
		string(n.NoiseType),
		n.DecibelLevel,
	)
	if err != nil {
		return types.NotificationItem{}, fmt.Errorf("notification store: save: %w", err)
	}
	return n, nil
}

// RecentNotifications implements [store.NotificationStore].
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]types.NotificationItem, error) {
	const q = `
		SELECT id, title, message, timestamp, viewed, noise_type, decibel_level
		FROM   notifications
		ORDER  BY timestamp DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, store.LimitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("notification store: recent: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.NotificationItem, error) {
		var (
			n     types.NotificationItem
			label string
		)
		if err := row.Scan(&n.ID, &n.Title, &n.Message, &n.Timestamp, &n.Viewed, &label, &n.DecibelLevel); err != nil {
			return types.NotificationItem{}, err
		}
		n.NoiseType = types.NoiseLabel(label)
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("notification store: scan: %w", err)
	}
	return items, nil
}

// MarkViewed implements [store.NotificationStore].
func (s *Store) MarkViewed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET viewed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("notification store: mark viewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
