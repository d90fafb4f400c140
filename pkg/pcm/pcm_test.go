package pcm_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/raaee/pkg/pcm"
)

func TestDecodeLE16(t *testing.T) {
	got := pcm.DecodeLE16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x7f})
	want := []int{1, -1, -32768}
	if !slices.Equal(got, want) {
		t.Errorf("DecodeLE16 = %v, want %v", got, want)
	}
}

func TestUpmix(t *testing.T) {
	got := pcm.Upmix([]int{100, 200, 300})
	want := []int{100, 100, 200, 200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("Upmix = %v, want %v", got, want)
	}
}

func TestDownmix(t *testing.T) {
	got := pcm.Downmix([]int{100, 200, -100, -200, 32767, 32767})
	want := []int{150, -150, 32767}
	if !slices.Equal(got, want) {
		t.Errorf("Downmix = %v, want %v", got, want)
	}
}

func TestResample(t *testing.T) {
	tests := map[string]struct {
		in       []int
		channels int
		src, dst int
		want     []int
	}{
		"same rate": {
			in: []int{1, 2, 3}, channels: 1, src: 16000, dst: 16000,
			want: []int{1, 2, 3},
		},
		"mono halve": {
			in: []int{0, 100, 200, 300}, channels: 1, src: 48000, dst: 24000,
			want: []int{0, 200},
		},
		"mono double interpolates": {
			in: []int{0, 100}, channels: 1, src: 8000, dst: 16000,
			want: []int{0, 50, 100, 100},
		},
		"stereo keeps channels apart": {
			in: []int{0, 1000, 100, 1100}, channels: 2, src: 8000, dst: 16000,
			want: []int{0, 1000, 50, 1050, 100, 1100, 100, 1100},
		},
		"invalid rate": {
			in: []int{1, 2}, channels: 1, src: 0, dst: 16000,
			want: []int{1, 2},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := pcm.Resample(tt.in, tt.channels, tt.src, tt.dst)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Resample = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	stereo44 := pcm.Format{SampleRate: 44100, Channels: 2}

	in := []int{10, 30, 50, 70}
	if got := pcm.Convert(in, stereo44, stereo44); !slices.Equal(got, in) {
		t.Errorf("matching formats changed samples: %v", got)
	}

	got := pcm.Convert([]int{10, 30, 50, 70}, stereo44, pcm.Format{SampleRate: 44100, Channels: 1})
	if want := []int{20, 60}; !slices.Equal(got, want) {
		t.Errorf("downmix = %v, want %v", got, want)
	}

	got = pcm.Convert([]int{0, 0, 100, 100}, pcm.Format{SampleRate: 8000, Channels: 2}, pcm.Format{SampleRate: 16000, Channels: 1})
	if want := []int{0, 50, 100, 100}; !slices.Equal(got, want) {
		t.Errorf("resample+downmix = %v, want %v", got, want)
	}
}

func TestFormat_Resolve(t *testing.T) {
	src := pcm.Format{SampleRate: 44100, Channels: 2}
	if got := (pcm.Format{}).Resolve(src); got != src {
		t.Errorf("zero Resolve = %+v", got)
	}
	if got := (pcm.Format{Channels: 1}).Resolve(src); got != (pcm.Format{SampleRate: 44100, Channels: 1}) {
		t.Errorf("partial Resolve = %+v", got)
	}
}
