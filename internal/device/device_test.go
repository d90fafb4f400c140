package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/voicechat"
)

func writeSource(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "question.webm")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileMicrophone_DeliversFragmentsThenEnds(t *testing.T) {
	t.Parallel()

	src := writeSource(t, []byte("0123456789"))
	mic := NewFileMicrophone(config.MicrophoneConfig{Source: src, MediaType: "audio/webm", FragmentBytes: 4})

	c, err := mic.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.MediaType() != "audio/webm" {
		t.Errorf("media type = %q", c.MediaType())
	}

	var got [][]byte
	for f := range c.Fragments() {
		got = append(got, f)
	}
	want := []string{"0123", "4567", "89"}
	if len(got) != len(want) {
		t.Fatalf("fragments = %q, want %q", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileMicrophone_Stop(t *testing.T) {
	t.Parallel()

	src := writeSource(t, bytes.Repeat([]byte("x"), 64))
	mic := NewFileMicrophone(config.MicrophoneConfig{
		Source:           src,
		FragmentBytes:    8,
		FragmentInterval: time.Hour,
	})
	c, err := mic.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f := <-c.Fragments(); len(f) != 8 {
		t.Fatalf("first fragment = %d bytes", len(f))
	}
	c.Stop()
	c.Stop()

	select {
	case _, ok := <-c.Fragments():
		if ok {
			t.Error("fragment delivered after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not end after Stop")
	}
}

func TestFileMicrophone_Denied(t *testing.T) {
	t.Parallel()

	for name, src := range map[string]string{
		"no source":    "",
		"missing file": filepath.Join(t.TempDir(), "nope.webm"),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFileMicrophone(config.MicrophoneConfig{Source: src}).Open(context.Background())
			if !errors.Is(err, voicechat.ErrPermissionDenied) {
				t.Errorf("err = %v, want ErrPermissionDenied", err)
			}
		})
	}
}

func makeWAV(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 1600),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestFilePlayer_WritesWAV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewFilePlayer(config.PlaybackConfig{OutputDir: dir}, WithClock(fixedClock))
	data := makeWAV(t)

	if err := p.Play(context.Background(), data); err != nil {
		t.Fatalf("Play: %v", err)
	}
	written, err := os.ReadFile(filepath.Join(dir, "reply-20260301-120000.000.wav"))
	if err != nil {
		t.Fatalf("reply file: %v", err)
	}
	if !bytes.Equal(written, data) {
		t.Error("WAV input was not written verbatim")
	}
}

func TestFilePlayer_Undecodable(t *testing.T) {
	t.Parallel()

	p := NewFilePlayer(config.PlaybackConfig{OutputDir: t.TempDir()}, WithClock(fixedClock))
	if err := p.Play(context.Background(), []byte("definitely not audio")); !errors.Is(err, ErrUndecodable) {
		t.Errorf("err = %v, want ErrUndecodable", err)
	}
}

func TestFilePlayer_Command(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	// The written path is appended as $0.
	p := NewFilePlayer(config.PlaybackConfig{
		OutputDir: t.TempDir(),
		Command:   []string{"sh", "-c", `test -s "$0"`},
	}, WithClock(fixedClock))
	if err := p.Play(context.Background(), makeWAV(t)); err != nil {
		t.Fatalf("Play: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewFilePlayer(config.PlaybackConfig{
		OutputDir: t.TempDir(),
		Command:   []string{"sleep", "5"},
	}, WithClock(fixedClock))
	if err := slow.Play(ctx, makeWAV(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Play = %v, want context.Canceled", err)
	}
}
