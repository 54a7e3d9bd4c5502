// Package clickhouse mirrors noise events into ClickHouse for long-range
// analytics. It is write-only; history queries are served by the primary
// event store.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/pkg/types"
)

const ddlNoiseEvents = `
CREATE TABLE IF NOT EXISTS noise_events (
    id             String,
    timestamp      DateTime64(3),
    decibel_level  Float64,
    is_alert       Bool,
    noise_type     LowCardinality(String)
) ENGINE = MergeTree()
ORDER BY (timestamp)
TTL toDateTime(timestamp) + INTERVAL 1 YEAR
`

var _ store.EventSink = (*Sink)(nil)

// Config holds connection parameters.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Sink writes events to ClickHouse.
type Sink struct {
	conn driver.Conn
}

// Open connects to ClickHouse and creates the events table.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse sink: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse sink: ping: %w", err)
	}
	if err := conn.Exec(ctx, ddlNoiseEvents); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse sink: create table: %w", err)
	}
	return &Sink{conn: conn}, nil
}

// LogEvent implements [store.EventSink].
func (s *Sink) LogEvent(ctx context.Context, ev types.NoiseEvent) error {
	const q = `
		INSERT INTO noise_events (id, timestamp, decibel_level, is_alert, noise_type)
		VALUES (?, ?, ?, ?, ?)`

	if err := s.conn.Exec(ctx, q,
		ev.ID,
		ev.Timestamp,
		ev.DecibelLevel,
		ev.IsAlert,
		string(ev.NoiseType),
	); err != nil {
		return fmt.Errorf("clickhouse sink: insert event: %w", err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
