// Package classify turns one audio window into a canonical noise label.
//
// The [Adapter] wraps a classifier.Engine: it fits the window to the
// engine's input length, runs inference once, picks the top-scoring class
// above a confidence floor and normalises the vendor class name with
// [Normalize].
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// DefaultMinConfidence is the score a class must reach to be reported.
// A score exactly equal to the floor passes.
const DefaultMinConfidence float32 = 0.20

// Prediction is the detailed outcome of one classification.
type Prediction struct {
	// Label is the normalised label, Unknown below the confidence floor.
	Label types.NoiseLabel

	// Raw is the class name from the label table, empty when no class won.
	Raw string

	// Index is the winning score index, -1 when no class won.
	Index int

	// Score is the winning score, 0 when no class won.
	Score float32
}

// Option is a functional option for [New].
type Option func(*Adapter)

// WithMinConfidence overrides [DefaultMinConfidence].
func WithMinConfidence(c float32) Option {
	return func(a *Adapter) { a.minConfidence = c }
}

// WithStats records the latency and outcome of every inference in s.
func WithStats(s *Stats) Option {
	return func(a *Adapter) { a.stats = s }
}

// Adapter classifies audio windows with a classifier.Engine.
//
// Adapter is safe for concurrent use if the engine is.
type Adapter struct {
	engine        classifier.Engine
	labels        classifier.Labels
	minConfidence float32
	stats         *Stats
}

// New creates an Adapter. labels names the engine's score indices.
func New(engine classifier.Engine, labels classifier.Labels, opts ...Option) *Adapter {
	a := &Adapter{
		engine:        engine,
		labels:        labels,
		minConfidence: DefaultMinConfidence,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Classify returns the canonical label for window. Engine failures are
// returned as errors; the caller decides which label to keep.
func (a *Adapter) Classify(ctx context.Context, window []float32) (types.NoiseLabel, error) {
	p, err := a.Predict(ctx, window)
	if err != nil {
		return types.LabelUnknown, err
	}
	return p.Label, nil
}

// Predict is like Classify but also reports the raw class, index and score.
func (a *Adapter) Predict(ctx context.Context, window []float32) (Prediction, error) {
	start := time.Now()
	scores, err := a.engine.Run(ctx, fit(window, a.engine.InputSize()))
	if a.stats != nil {
		a.stats.Record(time.Since(start), err)
	}
	if err != nil {
		return Prediction{Label: types.LabelUnknown, Index: -1}, fmt.Errorf("classify: inference: %w", err)
	}
	return a.pick(scores), nil
}

// pick selects the top class. The running maximum starts at zero and only a
// strictly greater score replaces it, so an all-zero or empty vector has no
// winner.
func (a *Adapter) pick(scores []float32) Prediction {
	none := Prediction{Label: types.LabelUnknown, Index: -1}

	best, bestIdx := float32(0), -1
	for i, s := range scores {
		if s > best {
			best, bestIdx = s, i
		}
	}
	if bestIdx < 0 || best < a.minConfidence {
		return none
	}
	raw, ok := a.labels.Name(bestIdx)
	if !ok {
		return none
	}
	return Prediction{
		Label: Normalize(raw),
		Raw:   raw,
		Index: bestIdx,
		Score: best,
	}
}

// fit copies window into a slice of exactly n samples, truncating or
// zero-padding as needed. A window that already has length n is returned
// as is.
func fit(window []float32, n int) []float32 {
	if len(window) == n {
		return window
	}
	out := make([]float32, n)
	copy(out, window)
	return out
}
