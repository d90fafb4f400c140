// Package pcm converts interleaved 16-bit PCM between sample rates and channel
// layouts. Samples are held as []int, the representation used by
// github.com/go-audio/audio buffers.
package pcm

import "encoding/binary"

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Resolve returns f with every zero field taken from src.
func (f Format) Resolve(src Format) Format {
	if f.SampleRate <= 0 {
		f.SampleRate = src.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = src.Channels
	}
	return f
}

// DecodeLE16 splits little-endian int16 PCM into samples. A trailing odd byte
// is ignored.
func DecodeLE16(b []byte) []int {
	out := make([]int, len(b)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(b[i*2:])))
	}
	return out
}

// Convert resamples then remixes samples from one format to another. Formats
// that already match return the input slice. Only mono and stereo remixing
// is supported; other channel changes keep the source layout.
func Convert(samples []int, from, to Format) []int {
	if from.Channels <= 0 {
		return samples
	}
	if from.SampleRate != to.SampleRate {
		samples = Resample(samples, from.Channels, from.SampleRate, to.SampleRate)
	}
	switch {
	case from.Channels == 2 && to.Channels == 1:
		samples = Downmix(samples)
	case from.Channels == 1 && to.Channels == 2:
		samples = Upmix(samples)
	}
	return samples
}

// Upmix duplicates each mono sample into an L+R pair.
func Upmix(mono []int) []int {
	out := make([]int, len(mono)*2)
	for i, s := range mono {
		out[i*2], out[i*2+1] = s, s
	}
	return out
}

// Downmix averages each stereo frame into one mono sample.
func Downmix(stereo []int) []int {
	out := make([]int, len(stereo)/2)
	for i := range out {
		out[i] = clamp((stereo[i*2] + stereo[i*2+1]) / 2)
	}
	return out
}

// Resample converts interleaved samples with the given channel count from
// srcRate to dstRate using linear interpolation between neighbouring frames.
func Resample(samples []int, channels, srcRate, dstRate int) []int {
	if channels <= 0 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return samples
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range channels {
			s0 := float64(samples[idx*channels+c])
			s1 := float64(samples[next*channels+c])
			out[i*channels+c] = clamp(int(s0*(1-frac) + s1*frac))
		}
	}
	return out
}

func clamp(s int) int {
	switch {
	case s > 32767:
		return 32767
	case s < -32768:
		return -32768
	}
	return s
}
