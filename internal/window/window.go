// Package window accumulates streaming PCM samples into fixed-size,
// non-overlapping classification windows.
package window

// Size is the number of samples in one classification window (0.975 s at 16 kHz).
const Size = 15600

// Buffer collects normalised samples until a full window is available.
//
// A Buffer is owned by the audio loop goroutine and is not safe for concurrent
// use. Windows returned by Push are fresh copies and may be handed to another
// goroutine.
type Buffer struct {
	buf []float32
	n   int
}

// New returns a Buffer with capacity size. A non-positive size uses [Size].
func New(size int) *Buffer {
	if size <= 0 {
		size = Size
	}
	return &Buffer{buf: make([]float32, size)}
}

// Push normalises samples to [-1, 1) and appends as many as fit. Samples that
// do not fit in the current window are dropped. When the window is exactly
// full, Push returns a copy of it and starts the next window empty.
func (b *Buffer) Push(samples []int16) ([]float32, bool) {
	free := len(b.buf) - b.n
	if len(samples) > free {
		samples = samples[:free]
	}
	for i, s := range samples {
		b.buf[b.n+i] = float32(s) / 32768.0
	}
	b.n += len(samples)

	if b.n < len(b.buf) {
		return nil, false
	}
	out := make([]float32, len(b.buf))
	copy(out, b.buf)
	b.n = 0
	return out, true
}

// Len returns the number of samples in the current partial window.
func (b *Buffer) Len() int { return b.n }

// Cap returns the window size.
func (b *Buffer) Cap() int { return len(b.buf) }

// Reset discards the current partial window.
func (b *Buffer) Reset() { b.n = 0 }
