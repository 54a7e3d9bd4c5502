package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
)

// ErrAllFailed is returned when no backend could classify a window, either
// because each one failed or because its breaker is open.
var ErrAllFailed = errors.New("resilience: all classifier backends failed")

// FallbackConfig configures the breaker placed in front of each backend. The
// breaker name is always the backend name.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type backend struct {
	name    string
	engine  classifier.Engine
	breaker *Breaker
}

// ClassifierFallback is a [classifier.Engine] that serves each window from the
// first backend whose breaker admits the call, in registration order.
//
// Every backend must share the primary's input size and class count because
// score indices are resolved against a single label table.
type ClassifierFallback struct {
	cfg      FallbackConfig
	backends []backend
}

var _ classifier.Engine = (*ClassifierFallback)(nil)

// NewClassifierFallback returns a fallback chain holding only primary.
func NewClassifierFallback(primary classifier.Engine, name string, cfg FallbackConfig) *ClassifierFallback {
	f := &ClassifierFallback{cfg: cfg}
	f.add(name, primary)
	return f
}

// AddFallback appends a backend. It fails when the backend's input size or
// class count differs from the primary's.
func (f *ClassifierFallback) AddFallback(name string, engine classifier.Engine) error {
	p := f.backends[0].engine
	if engine.InputSize() != p.InputSize() || engine.NumClasses() != p.NumClasses() {
		return fmt.Errorf("resilience: fallback %q takes %d samples and yields %d classes, primary takes %d and yields %d",
			name, engine.InputSize(), engine.NumClasses(), p.InputSize(), p.NumClasses())
	}
	f.add(name, engine)
	return nil
}

func (f *ClassifierFallback) add(name string, engine classifier.Engine) {
	bc := f.cfg.Breaker
	bc.Name = name
	f.backends = append(f.backends, backend{name: name, engine: engine, breaker: NewBreaker(bc)})
}

// InputSize returns the primary's window length.
func (f *ClassifierFallback) InputSize() int { return f.backends[0].engine.InputSize() }

// NumClasses returns the primary's class count.
func (f *ClassifierFallback) NumClasses() int { return f.backends[0].engine.NumClasses() }

// Run classifies input on the first healthy backend. A cancelled ctx stops the
// chain without trying further backends.
func (f *ClassifierFallback) Run(ctx context.Context, input []float32) ([]float32, error) {
	var errs []error
	for _, b := range f.backends {
		var scores []float32
		err := b.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			scores, err = b.engine.Run(ctx, input)
			return err
		})
		if err == nil {
			return scores, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping benched backend", "backend", b.name)
		} else {
			slog.Warn("resilience: backend failed, trying next", "backend", b.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Status returns the breaker state of every backend in the order they are
// tried.
func (f *ClassifierFallback) Status() []BreakerStatus {
	out := make([]BreakerStatus, len(f.backends))
	for i, b := range f.backends {
		out[i] = b.breaker.Status()
	}
	return out
}

// Check reports an error when every backend is benched, which means windows
// are no longer being classified. It satisfies the readiness checker shape.
func (f *ClassifierFallback) Check(_ context.Context) error {
	var open []string
	for _, s := range f.Status() {
		if s.State != StateOpen {
			return nil
		}
		open = append(open, s.Name)
	}
	return fmt.Errorf("all classifier backends benched: %s", strings.Join(open, ", "))
}

// Close closes every backend and joins their errors.
func (f *ClassifierFallback) Close() error {
	var errs []error
	for _, b := range f.backends {
		if err := b.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}
