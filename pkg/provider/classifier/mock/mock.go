// Package mock provides test doubles for the classifier package interfaces.
//
// Use Engine to inject score vectors and inspect the windows that were
// submitted for inference.
//
// Example:
//
//	scores := make([]float32, classifier.YAMNetClasses)
//	scores[396] = 0.8 // Siren
//	eng := &mock.Engine{Scores: scores}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
)

// Engine is a mock implementation of classifier.Engine.
type Engine struct {
	mu sync.Mutex

	// InputSizeResult is returned by InputSize. Defaults to
	// classifier.YAMNetInputSize when zero.
	InputSizeResult int

	// Scores is returned (copied) by Run.
	Scores []float32

	// RunErr, if non-nil, is returned as the error from Run.
	RunErr error

	// RunFunc, if set, replaces the Scores/RunErr behaviour.
	RunFunc func(ctx context.Context, input []float32) ([]float32, error)

	// RunCalls records a copy of every window passed to Run, in order.
	RunCalls [][]float32

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// InputSize implements classifier.Engine.
func (e *Engine) InputSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InputSizeResult == 0 {
		return classifier.YAMNetInputSize
	}
	return e.InputSizeResult
}

// NumClasses implements classifier.Engine.
func (e *Engine) NumClasses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Scores)
}

// Run records the call and returns Scores, RunErr.
func (e *Engine) Run(ctx context.Context, input []float32) ([]float32, error) {
	e.mu.Lock()
	e.RunCalls = append(e.RunCalls, slices.Clone(input))
	fn := e.RunFunc
	scores, err := slices.Clone(e.Scores), e.RunErr
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// Close implements classifier.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}

// RunCount returns the number of Run calls so far. Thread-safe.
func (e *Engine) RunCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.RunCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RunCalls = nil
	e.CloseCalls = 0
}

var _ classifier.Engine = (*Engine)(nil)
