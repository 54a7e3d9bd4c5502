// Package audio defines the interfaces and types for microphone capture and
// alert-cue playback within noisewatch.
//
// The primary abstractions are:
//
//   - [Capturer]: opens an input device and returns a [Source].
//   - [Source]: an open input that delivers blocking reads of 16-bit PCM.
//   - [Player]: plays a decoded [Clip] on an output device.
//
// Implementations live in device-specific adapter packages (audio/portaudio,
// audio/replay). The interfaces are intentionally narrow to keep the monitor
// decoupled from driver details.
//
// This package lives under pkg/ because external code (third-party capture
// adapters) is expected to implement [Capturer] and [Source].
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrSourceUnavailable is returned by [Capturer.Open] when the requested
// [SourceKind] cannot be provided by the device.
var ErrSourceUnavailable = errors.New("audio: source unavailable")

// SourceKind selects the processing level of an input source.
type SourceKind int

const (
	// SourceUnprocessed requests the raw input path with no automatic gain
	// control or noise suppression. Preferred for loudness measurement.
	SourceUnprocessed SourceKind = iota

	// SourceProcessed is the ordinary microphone path, possibly with
	// platform processing applied.
	SourceProcessed
)

// String returns the human-readable name of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceUnprocessed:
		return "UNPROCESSED"
	case SourceProcessed:
		return "PROCESSED"
	default:
		return "UNKNOWN"
	}
}

// CaptureConfig describes the input stream requested from a [Capturer].
type CaptureConfig struct {
	// Format is the PCM format delivered by [Source.Read]. Capture adapters
	// convert from the device format if they need to.
	Format Format

	// FrameSize is the number of samples per read buffer. Adapters may raise
	// it to the device minimum.
	FrameSize int

	// Kind selects the processing level of the input.
	Kind SourceKind
}

// Source is an open audio input.
//
// Read blocks until buf holds data or the source fails. A Source is owned by
// a single reader goroutine; Close may be called from any goroutine and
// unblocks a pending Read.
type Source interface {
	// Read fills buf with up to len(buf) mono int16 samples and returns the
	// number of samples written. io.EOF signals the end of a finite source.
	Read(buf []int16) (int, error)

	// Format returns the format of the samples delivered by Read.
	Format() Format

	// Close releases the underlying device. Subsequent calls return nil.
	Close() error
}

// Capturer is the entry point for an input device provider.
//
// Implementations must be safe for concurrent use.
type Capturer interface {
	// Open acquires the device and returns a started [Source]. Returns
	// [ErrSourceUnavailable] (possibly wrapped) when cfg.Kind is not
	// supported, or another error when the device cannot be opened at all.
	Open(ctx context.Context, cfg CaptureConfig) (Source, error)
}

// Player plays short clips on an output device.
//
// Implementations must be safe for concurrent use. Play returns once the
// clip has been handed to the device; it does not wait for playback to end.
type Player interface {
	Play(ctx context.Context, clip Clip) error
	Close() error
}

// OpenPreferred opens the unprocessed source of c and falls back to the
// processed microphone when the unprocessed path cannot be opened. The Kind
// field of cfg is ignored.
func OpenPreferred(ctx context.Context, c Capturer, cfg CaptureConfig) (Source, error) {
	cfg.Kind = SourceUnprocessed
	src, err := c.Open(ctx, cfg)
	if err == nil {
		return src, nil
	}
	slog.Warn("audio: unprocessed source unavailable, falling back to processed microphone", "err", err)

	cfg.Kind = SourceProcessed
	src, fallbackErr := c.Open(ctx, cfg)
	if fallbackErr != nil {
		return nil, fmt.Errorf("audio: open source: %w", errors.Join(err, fallbackErr))
	}
	return src, nil
}
