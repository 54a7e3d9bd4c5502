package audio

import (
	"log/slog"
	"sync"
)

// Converter converts interleaved int16 PCM to a target format. It logs a
// warning on the first format mismatch. Create one per stream; not designed
// for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts samples recorded in from to the target format. If the
// formats already match, samples is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample.
func (c *Converter) Convert(samples []int16, from Format) []int16 {
	if from == c.Target {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	out := samples
	if from.Channels > 1 && c.Target.Channels == 1 {
		out = Downmix(out, from.Channels)
	}
	if from.SampleRate != c.Target.SampleRate {
		out = ResampleMono16(out, from.SampleRate, c.Target.SampleRate)
	}
	return out
}

// DecodePCM16 converts little-endian int16 PCM bytes to samples. A trailing
// odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// EncodePCM16 converts samples to little-endian int16 PCM bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// StereoToMono averages each L+R pair into one mono sample.
func StereoToMono(samples []int16) []int16 {
	return Downmix(samples, 2)
}

// Downmix averages each group of channels interleaved samples into one mono
// sample. Uses int32 arithmetic to prevent overflow. An incomplete trailing
// frame is dropped.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = clamp16(sum / int32(channels))
	}
	return out
}

// ResampleMono16 resamples mono samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
