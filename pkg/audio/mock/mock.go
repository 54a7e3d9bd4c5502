// Package mock provides in-memory mock implementations of the [audio.Capturer],
// [audio.Source], and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{Blocks: [][]int16{loud, loud, quiet}}
//	capturer := &mock.Capturer{OpenResult: src}
//	got, err := capturer.Open(ctx, audio.CaptureConfig{Format: audio.MonitorFormat})
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
//
// Each Read call copies the next entry of Blocks into the caller's buffer.
// When Blocks is exhausted, Read returns ReadErr if set, otherwise it repeats
// the last block when Loop is true, otherwise io.EOF.
type Source struct {
	mu sync.Mutex

	// Blocks are returned by successive Read calls.
	Blocks [][]int16

	// Loop repeats the final block forever once Blocks is exhausted.
	Loop bool

	// ReadErr is returned once Blocks is exhausted (takes precedence over Loop).
	ReadErr error

	// FormatResult is returned by Format. Defaults to [audio.MonitorFormat].
	FormatResult audio.Format

	// CloseErr is returned by Close.
	CloseErr error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next   int
	closed bool
}

// Read implements [audio.Source].
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRead++
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if s.next < len(s.Blocks) {
		n := copy(buf, s.Blocks[s.next])
		s.next++
		return n, nil
	}
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	if s.Loop && len(s.Blocks) > 0 {
		return copy(buf, s.Blocks[len(s.Blocks)-1]), nil
	}
	return 0, io.EOF
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FormatResult == (audio.Format{}) {
		return audio.MonitorFormat
	}
	return s.FormatResult
}

// Close implements [audio.Source]. Returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	return s.CloseErr
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Capturer ─────────────────────────────────────────────────────────────────

// Capturer is a mock implementation of [audio.Capturer].
type Capturer struct {
	mu sync.Mutex

	// OpenResult is the [audio.Source] returned by Open.
	OpenResult audio.Source

	// OpenErr is returned by Open for every kind not listed in KindErrs.
	OpenErr error

	// KindErrs overrides OpenErr per requested source kind.
	KindErrs map[audio.SourceKind]error

	// OpenCalls records all Open invocations.
	OpenCalls []audio.CaptureConfig
}

// Open implements [audio.Capturer].
func (c *Capturer) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, cfg)
	if err, ok := c.KindErrs[cfg.Kind]; ok && err != nil {
		return nil, err
	}
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	return c.OpenResult, nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// PlayCalls records the clips passed to Play.
	PlayCalls []audio.Clip

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, clip)
	return p.PlayErr
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

// PlayCount returns the number of Play calls so far.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// Compile-time interface assertions.
var (
	_ audio.Source   = (*Source)(nil)
	_ audio.Capturer = (*Capturer)(nil)
	_ audio.Player   = (*Player)(nil)
)
