// Package replay implements [audio.Capturer] over a recorded file, for
// running the monitor against captured audio instead of a live microphone.
//
// Files ending in .wav are decoded with their header format; anything else
// is read as headerless little-endian int16 PCM in the format given to [New].
// A recording has no processing applied, so both source kinds are served.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// Option is a functional option for [New].
type Option func(*Capturer)

// WithLoop restarts the recording from the beginning instead of returning
// io.EOF.
func WithLoop(loop bool) Option {
	return func(c *Capturer) { c.loop = loop }
}

// WithRealtime paces reads so that each block is delivered no earlier than
// its wall-clock position in the recording.
func WithRealtime(realtime bool) Option {
	return func(c *Capturer) { c.realtime = realtime }
}

// Capturer opens a recorded file as an [audio.Source].
type Capturer struct {
	path     string
	raw      audio.Format
	loop     bool
	realtime bool
}

// New creates a Capturer for path. raw is the format of headerless PCM files
// and is ignored for WAV files.
func New(path string, raw audio.Format, opts ...Option) *Capturer {
	if raw == (audio.Format{}) {
		raw = audio.MonitorFormat
	}
	c := &Capturer{path: path, raw: raw}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open implements [audio.Capturer]. The whole file is decoded and converted
// to cfg.Format up front.
func (c *Capturer) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Source, error) {
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.MonitorFormat
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %q: %w", c.path, err)
	}
	defer f.Close()

	var clip audio.Clip
	if strings.EqualFold(filepath.Ext(c.path), ".wav") {
		clip, err = audio.DecodeWAV(f)
		if err != nil {
			return nil, fmt.Errorf("replay: %q: %w", c.path, err)
		}
	} else {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("replay: read %q: %w", c.path, err)
		}
		clip = audio.Clip{Samples: audio.DecodePCM16(data), Format: c.raw}
	}
	return NewSource(clip, cfg.Format, c.loop, c.realtime), nil
}

// Source serves samples from an in-memory recording.
type Source struct {
	mu       sync.Mutex
	samples  []int16
	format   audio.Format
	pos      int
	loop     bool
	realtime bool
	start    time.Time
	closed   bool
}

// NewSource returns a Source that converts clip to format and replays it.
func NewSource(clip audio.Clip, format audio.Format, loop, realtime bool) *Source {
	conv := audio.Converter{Target: format}
	return &Source{
		samples:  conv.Convert(clip.Samples, clip.Format),
		format:   format,
		loop:     loop,
		realtime: realtime,
	}
}

// Read implements [audio.Source].
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if s.pos >= len(s.samples) {
		if !s.loop || len(s.samples) == 0 {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.pos = 0
		s.start = time.Time{}
	}
	if s.start.IsZero() {
		s.start = time.Now()
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	due := s.start.Add(s.format.DurationOf(s.pos))
	realtime := s.realtime
	s.mu.Unlock()

	if realtime {
		if wait := time.Until(due); wait > 0 {
			time.Sleep(wait)
		}
	}
	return n, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format { return s.format }

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ audio.Capturer = (*Capturer)(nil)
	_ audio.Source   = (*Source)(nil)
)
