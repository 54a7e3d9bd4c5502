// Package classifier defines the Engine interface for audio event
// classification backends.
//
// An Engine wraps a pretrained multi-class audio event model (e.g., YAMNet)
// behind a fixed input/output contract: one float32 waveform of exactly
// InputSize samples in [-1, 1] goes in, one score vector of NumClasses floats
// comes out. Score index i corresponds to entry i of the model's [Labels]
// table. The model internals are opaque to the rest of noisewatch.
//
// Run is synchronous and may take tens of milliseconds; callers on a latency
// sensitive path dispatch it to a separate goroutine.
//
// Implementations must be safe for concurrent use. Backends whose runtime
// sessions are not reentrant serialise Run internally.
package classifier

import "context"

// YAMNet model contract.
const (
	// YAMNetInputSize is the number of 16 kHz samples in one YAMNet window
	// (0.975 s).
	YAMNetInputSize = 15600

	// YAMNetClasses is the number of AudioSet classes scored by YAMNet.
	YAMNetClasses = 521
)

// Engine runs inference over a single audio window.
type Engine interface {
	// InputSize returns the exact number of samples Run expects.
	InputSize() int

	// NumClasses returns the length of the score vector returned by Run.
	NumClasses() int

	// Run classifies one window and returns one score per class. input must
	// hold exactly InputSize samples; callers pad or truncate beforehand.
	// The returned slice is owned by the caller.
	Run(ctx context.Context, input []float32) ([]float32, error)

	// Close releases the model. Calling Close more than once is safe and
	// returns nil.
	Close() error
}
