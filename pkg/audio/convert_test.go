package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/noisewatch/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestDecodePCM16(t *testing.T) {
	want := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.DecodePCM16(samplesToBytes(want))
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodePCM16_OddTrailingByte(t *testing.T) {
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF} // 100, 200, then junk byte
	got := audio.DecodePCM16(pcm)
	want := []int16{100, 200}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEncodePCM16_RoundTripsDecode(t *testing.T) {
	in := []int16{-300, 0, 300, 32767}
	if got := audio.DecodePCM16(audio.EncodePCM16(in)); !slices.Equal(got, in) {
		t.Errorf("got %v, want %v", got, in)
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := audio.StereoToMono([]int16{100, 200, -100, -200})
	want := []int16{150, -150}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	got := audio.StereoToMono([]int16{32767, 32767, -32768, -32768})
	want := []int16{32767, -32768}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDownmix_DropsIncompleteFrame(t *testing.T) {
	got := audio.Downmix([]int16{30, 60, 90, 5}, 3)
	want := []int16{60}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	in := []int16{100, 200, 300}
	out := audio.ResampleMono16(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("expected same slice for matching rates")
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	got := audio.ResampleMono16([]int16{1000, 2000}, 16000, 48000)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	got := audio.ResampleMono16([]int16{100, 200, 300, 400, 500, 600}, 48000, 16000)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	in := []int16{100, 200}
	for _, tc := range []struct{ src, dst int }{{0, 48000}, {48000, 0}, {-1, 48000}} {
		if out := audio.ResampleMono16(in, tc.src, tc.dst); len(out) != len(in) {
			t.Errorf("ResampleMono16(%d→%d): expected unchanged output, got len %d", tc.src, tc.dst, len(out))
		}
	}
}

func TestConverter_NoOp(t *testing.T) {
	conv := audio.Converter{Target: audio.MonitorFormat}
	in := []int16{100, 200}
	out := conv.Convert(in, audio.MonitorFormat)
	if &out[0] != &in[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestConverter_StereoToMonitorFormat(t *testing.T) {
	conv := audio.Converter{Target: audio.MonitorFormat}
	// 48 kHz stereo, 6 frames → 16 kHz mono, 2 samples.
	in := []int16{
		100, 100, 200, 200, 300, 300,
		400, 400, 500, 500, 600, 600,
	}
	out := conv.Convert(in, audio.Format{SampleRate: 48000, Channels: 2})
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	if out[0] != 100 {
		t.Errorf("first sample: got %d, want 100", out[0])
	}
}

func TestClipDuration(t *testing.T) {
	tests := []struct {
		name string
		clip audio.Clip
		want time.Duration
	}{
		{"one second mono", audio.Clip{Samples: make([]int16, 16000), Format: audio.MonitorFormat}, time.Second},
		{"half second stereo", audio.Clip{Samples: make([]int16, 44100), Format: audio.Format{SampleRate: 44100, Channels: 2}}, 500 * time.Millisecond},
		{"zero format", audio.Clip{Samples: make([]int16, 10)}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.clip.Duration(); got != tc.want {
				t.Errorf("Duration() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	if got := audio.MonitorFormat.String(); got != "16000Hz mono" {
		t.Errorf("got %q", got)
	}
	if got := (audio.Format{SampleRate: 48000, Channels: 6}).String(); got != "48000Hz 6ch" {
		t.Errorf("got %q", got)
	}
}
