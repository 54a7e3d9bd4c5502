package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// MonitorFormat is the format the loudness and classification pipeline
// expects: 16 kHz mono.
var MonitorFormat = Format{SampleRate: 16000, Channels: 1}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// DurationOf returns the playback length of n interleaved samples in f.
func (f Format) DurationOf(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Clip is a decoded, in-memory sound such as the alert cue.
type Clip struct {
	// Samples holds interleaved int16 PCM.
	Samples []int16

	Format Format
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return c.Format.DurationOf(len(c.Samples))
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
