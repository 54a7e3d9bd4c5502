package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/internal/store/postgres"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if NOISEWATCH_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NOISEWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOISEWATCH_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS notifications CASCADE",
		"DROP TABLE IF EXISTS noise_events CASCADE",
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestEvents_LogAndSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	events := []types.NoiseEvent{
		{Timestamp: base.Add(-2 * time.Minute), DecibelLevel: 42.5, NoiseType: types.LabelTalking},
		{ID: "fixed-id", Timestamp: base.Add(-time.Minute), DecibelLevel: 81, IsAlert: true, NoiseType: types.LabelSiren},
		{Timestamp: base, DecibelLevel: 55, NoiseType: types.NoiseLabel("Vacuum cleaner")},
	}
	for _, ev := range events {
		if err := s.LogEvent(ctx, ev); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}
	// Same ID again is ignored.
	if err := s.LogEvent(ctx, events[1]); err != nil {
		t.Fatalf("LogEvent duplicate: %v", err)
	}

	got, err := s.EventsSince(ctx, base.Add(-90*time.Second), 0)
	if err != nil {
		t.Fatalf("EventsSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("EventsSince: want 2, got %d", len(got))
	}
	if got[0].ID != "fixed-id" || !got[0].IsAlert || got[0].NoiseType != types.LabelSiren {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].NoiseType != "Vacuum cleaner" || got[1].DecibelLevel != 55 {
		t.Errorf("second event = %+v", got[1])
	}

	limited, err := s.EventsSince(ctx, time.Time{}, 1)
	if err != nil {
		t.Fatalf("EventsSince limit: %v", err)
	}
	if len(limited) != 1 || limited[0].DecibelLevel != 42.5 {
		t.Errorf("limit 1 = %+v", limited)
	}
}

func TestNotifications_SaveListMark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older, err := s.SaveNotification(ctx, types.NotificationItem{
		Title: "High Noise Alert!", Message: "Critical Noise Detected (88.0 dB)",
		Timestamp: base.Add(-time.Hour), NoiseType: types.LabelScreaming, DecibelLevel: 88,
	})
	if err != nil {
		t.Fatalf("SaveNotification: %v", err)
	}
	newer, err := s.SaveNotification(ctx, types.NotificationItem{
		Title: "High Noise Alert!", Message: "Study Threshold Exceeded (71.0 dB)",
		Timestamp: base, NoiseType: types.LabelTalking, DecibelLevel: 71,
	})
	if err != nil {
		t.Fatalf("SaveNotification: %v", err)
	}
	if older.ID == "" || older.ID == newer.ID {
		t.Fatalf("ids = %q, %q", older.ID, newer.ID)
	}

	if err := s.MarkViewed(ctx, older.ID); err != nil {
		t.Fatalf("MarkViewed: %v", err)
	}
	if err := s.MarkViewed(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkViewed(missing) = %v, want ErrNotFound", err)
	}

	got, err := s.RecentNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("RecentNotifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2, got %d", len(got))
	}
	if got[0].ID != newer.ID || got[0].Viewed {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].ID != older.ID || !got[1].Viewed || got[1].DecibelLevel != 88 {
		t.Errorf("oldest = %+v", got[1])
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
