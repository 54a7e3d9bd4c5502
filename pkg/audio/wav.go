package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned by [DecodeWAV] when the input is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// DecodeWAV reads a PCM WAV file into a [Clip]. 8, 16, 24 and 32 bit integer
// PCM is scaled to int16.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	depth := int(d.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			samples[i] = int16((v - 128) << 8)
		case depth > 16:
			samples[i] = int16(v >> (depth - 16))
		default:
			samples[i] = int16(v)
		}
	}
	return Clip{
		Samples: samples,
		Format:  Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)},
	}, nil
}
