package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// playerFrameSize is the number of frames written per output buffer.
const playerFrameSize = 512

// Player plays clips on the default output device. Only one clip plays at a
// time; a Play call while another clip is still playing is dropped.
type Player struct {
	mu      sync.Mutex
	playing bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPlayer initialises PortAudio and returns a Player. Close must be called
// to release the library.
func NewPlayer() (*Player, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Player{}, nil
}

// Play implements [audio.Player]. The stream is opened synchronously so that
// device errors are returned; the samples are written on a background
// goroutine.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if len(clip.Samples) == 0 || clip.Format.Channels <= 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("portaudio: play on closed player")
	}
	if p.playing {
		p.mu.Unlock()
		slog.Debug("portaudio: clip already playing, dropping")
		return nil
	}
	p.playing = true
	p.wg.Add(1)
	p.mu.Unlock()

	buf := make([]int16, playerFrameSize*clip.Format.Channels)
	stream, err := pa.OpenDefaultStream(0, clip.Format.Channels, float64(clip.Format.SampleRate), playerFrameSize, buf)
	if err == nil {
		err = stream.Start()
		if err != nil {
			_ = stream.Close()
		}
	}
	if err != nil {
		p.setIdle()
		p.wg.Done()
		return fmt.Errorf("portaudio: open output: %w", err)
	}

	go func() {
		defer p.wg.Done()
		defer p.setIdle()
		defer func() {
			if err := errors.Join(stream.Stop(), stream.Close()); err != nil {
				slog.Warn("portaudio: close output", "err", err)
			}
		}()

		for off := 0; off < len(clip.Samples); off += len(buf) {
			if ctx.Err() != nil {
				return
			}
			n := copy(buf, clip.Samples[off:])
			clear(buf[n:])
			if err := stream.Write(); err != nil {
				slog.Warn("portaudio: write output", "err", err)
				return
			}
		}
	}()
	return nil
}

// Close waits for the current clip to finish and releases PortAudio.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	return pa.Terminate()
}

func (p *Player) setIdle() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

var _ audio.Player = (*Player)(nil)
