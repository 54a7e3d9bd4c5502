// Package portaudio implements [audio.Capturer] and [audio.Player] on top of
// the PortAudio C library via github.com/gordonklaus/portaudio.
//
// The unprocessed source is a named input device (typically a raw hardware
// device such as "hw:1,0" that bypasses the desktop mixer's processing). The
// processed source is the host's default input device. When no raw device is
// configured, opening [audio.SourceUnprocessed] returns
// [audio.ErrSourceUnavailable] so that [audio.OpenPreferred] falls back.
//
// Every Open and NewPlayer call initialises PortAudio and every Close
// terminates it again; PortAudio reference-counts these calls internally.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// defaultFrameSize is used when CaptureConfig.FrameSize is zero: 20 ms at 16 kHz.
const defaultFrameSize = 320

// Option is a functional option for [New].
type Option func(*Capturer)

// WithDevice sets the name (or name prefix) of the raw input device used for
// [audio.SourceUnprocessed].
func WithDevice(name string) Option {
	return func(c *Capturer) { c.device = name }
}

// Capturer opens PortAudio input streams.
type Capturer struct {
	device string
}

// New creates a Capturer.
func New(opts ...Option) *Capturer {
	c := &Capturer{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open implements [audio.Capturer].
func (c *Capturer) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Source, error) {
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.MonitorFormat
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if cfg.Kind == audio.SourceUnprocessed && c.device == "" {
		return nil, fmt.Errorf("portaudio: no raw input device configured: %w", audio.ErrSourceUnavailable)
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	dev, err := c.pickDevice(cfg.Kind)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = cfg.Format.Channels
	params.SampleRate = float64(cfg.Format.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	buf := make([]int16, cfg.FrameSize*cfg.Format.Channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open %s stream on %q: %w", cfg.Kind, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream on %q: %w", dev.Name, err)
	}

	slog.Info("portaudio: input opened",
		"device", dev.Name,
		"kind", cfg.Kind.String(),
		"format", cfg.Format.String(),
		"frame_size", cfg.FrameSize,
	)
	return &source{stream: stream, buf: buf, format: cfg.Format}, nil
}

// pickDevice resolves the input device for kind.
func (c *Capturer) pickDevice(kind audio.SourceKind) (*pa.DeviceInfo, error) {
	if kind == audio.SourceProcessed {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.HasPrefix(d.Name, c.device) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: input device %q not found: %w", c.device, audio.ErrSourceUnavailable)
}

// source is an open PortAudio input stream. Read is called from a single
// goroutine; Close may race with it and aborts the stream to unblock it.
type source struct {
	stream    *pa.Stream
	buf       []int16
	format    audio.Format
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Read implements [audio.Source]. Input overflows are logged and tolerated.
func (s *source) Read(buf []int16) (int, error) {
	if s.closed.Load() {
		return 0, errors.New("portaudio: read on closed source")
	}
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, pa.InputOverflowed) {
			return 0, fmt.Errorf("portaudio: read: %w", err)
		}
		slog.Debug("portaudio: input overflowed")
	}
	return copy(buf, s.buf), nil
}

// Format implements [audio.Source].
func (s *source) Format() audio.Format { return s.format }

// Close implements [audio.Source].
func (s *source) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := errors.Join(s.stream.Abort(), s.stream.Close(), pa.Terminate()); err != nil {
			s.closeErr = fmt.Errorf("portaudio: close: %w", err)
		}
	})
	return s.closeErr
}

var (
	_ audio.Capturer = (*Capturer)(nil)
	_ audio.Source   = (*source)(nil)
)
