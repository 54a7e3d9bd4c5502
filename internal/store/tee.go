package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// EventSink receives events but cannot be queried. Analytics backends such
// as store/clickhouse implement it.
type EventSink interface {
	LogEvent(ctx context.Context, ev types.NoiseEvent) error
}

// Tee is an [EventStore] that writes to a primary store and mirrors every
// event to additional sinks. Reads go to the primary only.
type Tee struct {
	primary EventStore
	mirrors []EventSink
}

var _ EventStore = (*Tee)(nil)

// NewTee creates a Tee. Nil mirrors are ignored.
func NewTee(primary EventStore, mirrors ...EventSink) *Tee {
	t := &Tee{primary: primary}
	for _, m := range mirrors {
		if m != nil {
			t.mirrors = append(t.mirrors, m)
		}
	}
	return t
}

// LogEvent writes ev to the primary and every mirror. The event gets its ID
// before the first write so all backends agree on it. Every backend is
// attempted; failures are joined.
func (t *Tee) LogEvent(ctx context.Context, ev types.NoiseEvent) error {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	var errs []error
	if err := t.primary.LogEvent(ctx, ev); err != nil {
		errs = append(errs, err)
	}
	for _, m := range t.mirrors {
		if err := m.LogEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventsSince implements [EventStore] by reading from the primary.
func (t *Tee) EventsSince(ctx context.Context, since time.Time, limit int) ([]types.NoiseEvent, error) {
	return t.primary.EventsSince(ctx, since, limit)
}
