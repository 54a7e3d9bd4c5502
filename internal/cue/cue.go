// Package cue plays the alert sound and reports how long it lasts.
package cue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// ErrNoClip is returned by [Player.Play] when no cue was loaded.
var ErrNoClip = errors.New("cue: no clip loaded")

// Player plays one preloaded alert clip on an [audio.Player].
//
// A Player with no clip is valid: Play returns [ErrNoClip] and Duration
// reports an unknown length, so callers fall back to a fixed suppression
// window.
type Player struct {
	out  audio.Player
	clip audio.Clip
	ok   bool
}

// New creates a Player that plays clip on out.
func New(out audio.Player, clip audio.Clip) *Player {
	return &Player{out: out, clip: clip, ok: len(clip.Samples) > 0}
}

// Load reads a WAV file for use with [New].
func Load(path string) (audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cue: read %q: %w", path, err)
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cue: %q: %w", path, err)
	}
	return clip, nil
}

// Duration returns the clip length. ok is false when no clip is loaded or its
// format does not allow computing a length.
func (p *Player) Duration() (d time.Duration, ok bool) {
	if !p.ok {
		return 0, false
	}
	d = p.clip.Duration()
	return d, d > 0
}

// Play starts the cue and returns without waiting for it to finish.
func (p *Player) Play(ctx context.Context) error {
	if !p.ok || p.out == nil {
		return ErrNoClip
	}
	if err := p.out.Play(ctx, p.clip); err != nil {
		return fmt.Errorf("cue: play: %w", err)
	}
	return nil
}
