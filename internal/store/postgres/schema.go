// Package postgres provides a PostgreSQL-backed implementation of the
// noisewatch event log and notification history.
//
// Both tables share a single [pgxpool.Pool] connection pool. [Migrate]
// creates them on start-up.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//
//	_ = s.LogEvent(ctx, ev)
//	n, _ = s.SaveNotification(ctx, n)
//	recent, _ := s.RecentNotifications(ctx, 20)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Event log
// ─────────────────────────────────────────────────────────────────────────────

const ddlNoiseEvents = `
CREATE TABLE IF NOT EXISTS noise_events (
    id             TEXT              PRIMARY KEY,
    timestamp      TIMESTAMPTZ       NOT NULL,
    decibel_level  DOUBLE PRECISION  NOT NULL,
    is_alert       BOOLEAN           NOT NULL DEFAULT false,
    noise_type     TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_noise_events_timestamp
    ON noise_events (timestamp);

CREATE INDEX IF NOT EXISTS idx_noise_events_alerts
    ON noise_events (timestamp) WHERE is_alert;
`

// ─────────────────────────────────────────────────────────────────────────────
// Notification history
// ─────────────────────────────────────────────────────────────────────────────

const ddlNotifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id             TEXT         PRIMARY KEY,
    title          TEXT         NOT NULL,
    message        TEXT         NOT NULL,
    timestamp      TIMESTAMPTZ  NOT NULL,
    viewed         BOOLEAN      NOT NULL DEFAULT false,
    noise_type     TEXT         NOT NULL DEFAULT '',
    decibel_level  INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notifications_timestamp
    ON notifications (timestamp DESC);
`

// Migrate creates or ensures all required tables exist. It is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe to call
// on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlNoiseEvents,
		ddlNotifications,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
