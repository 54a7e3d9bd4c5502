// Package loudness converts raw PCM blocks into a calibrated, smoothed
// loudness value on a dB-like scale.
//
// The scale is anchored so that digital silence reads 30 and full-scale input
// reads 100. It approximates sound pressure level for a typical phone or
// laptop microphone; it is not a calibrated SPL meter.
package loudness

import "math"

const (
	// Floor is the lowest reported loudness. Silence and degenerate blocks
	// report exactly Floor.
	Floor = 30.0

	// Ceiling is the highest reported loudness.
	Ceiling = 100.0

	// SmoothingFactor is the weight of the newest reading in the exponential
	// moving average.
	SmoothingFactor = 0.4

	// minRMS is the RMS below which a block counts as silence.
	minRMS = 1.0

	// fullScale is the int16 reference amplitude for 0 dBFS.
	fullScale = 32767.0
)

// Estimator turns sample blocks into smoothed loudness values.
//
// An Estimator holds the smoothing state of one stream and is owned by a
// single goroutine; it is not safe for concurrent use.
type Estimator struct {
	prev   float64
	primed bool
}

// New returns an Estimator with empty smoothing state.
func New() *Estimator {
	return &Estimator{}
}

// Estimate returns the smoothed loudness of the first count samples of
// samples. count is clamped to len(samples). When count <= 0 it returns
// [Floor] without touching the smoothing state.
//
// The result is always within [Floor, Ceiling].
func (e *Estimator) Estimate(samples []int16, count int) float64 {
	count = min(count, len(samples))
	if count <= 0 {
		return Floor
	}
	return e.smooth(Level(samples[:count]))
}

// Reset clears the smoothing state so that the next reading is taken as is.
func (e *Estimator) Reset() {
	e.prev = 0
	e.primed = false
}

func (e *Estimator) smooth(v float64) float64 {
	if !e.primed {
		e.prev = v
		e.primed = true
	}
	e.prev = e.prev*(1-SmoothingFactor) + v*SmoothingFactor
	return e.prev
}

// Level returns the unsmoothed, clamped loudness of samples. An empty block
// or one with RMS below 1.0 reads [Floor].
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return Floor
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < minRMS {
		return Floor
	}
	db := 20 * math.Log10(rms/fullScale)
	scaled := ((db + 96.0) * 1.25) - 20.0
	return math.Max(Floor, math.Min(Ceiling, scaled))
}
