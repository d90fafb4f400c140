package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/voicechat"
	"github.com/MrWong99/raaee/pkg/pcm"
)

var _ voicechat.Player = (*FilePlayer)(nil)

// ErrUndecodable is returned for audio that is neither WAV nor MP3.
var ErrUndecodable = errors.New("device: audio is neither WAV nor MP3")

// FilePlayer writes every reply to a WAV file and optionally runs a command
// on it. Cancelling the Play context kills the command.
type FilePlayer struct {
	dir     string
	command []string
	format  pcm.Format
	now     func() time.Time
}

// PlayerOption configures a [FilePlayer].
type PlayerOption func(*FilePlayer)

// WithClock overrides time.Now used for file names. Intended for tests.
func WithClock(now func() time.Time) PlayerOption {
	return func(p *FilePlayer) { p.now = now }
}

// NewFilePlayer creates a player from cfg. An empty OutputDir uses a
// directory below [os.TempDir].
func NewFilePlayer(cfg config.PlaybackConfig, opts ...PlayerOption) *FilePlayer {
	p := &FilePlayer{
		dir:     cfg.OutputDir,
		command: cfg.Command,
		format:  pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		now:     time.Now,
	}
	if p.dir == "" {
		p.dir = filepath.Join(os.TempDir(), "raaee-replies")
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements voicechat.Player. MP3 input (what the speech proxy returns)
// is decoded, converted to the configured format and re-encoded as 16-bit
// PCM WAV; WAV input is written as is.
func (p *FilePlayer) Play(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("device: create output dir: %w", err)
	}
	path := filepath.Join(p.dir, fmt.Sprintf("reply-%s.wav", p.now().Format("20060102-150405.000")))

	if isWAV(data) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("device: write reply: %w", err)
		}
	} else if err := mp3ToWAV(data, path, p.format); err != nil {
		return err
	}
	slog.Info("reply audio written", "path", path)

	if len(p.command) == 0 {
		return nil
	}
	args := append(append([]string(nil), p.command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("device: run %s: %w: %s", p.command[0], err, bytes.TrimSpace(out))
	}
	return nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// mp3ToWAV decodes MP3 data into a 16-bit WAV file at path. Zero fields of
// target keep the decoded format.
func mp3ToWAV(data []byte, path string, target pcm.Format) error {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return fmt.Errorf("device: decode mp3: %w", err)
	}

	// go-mp3 always yields interleaved stereo 16-bit little-endian samples.
	src := pcm.Format{SampleRate: dec.SampleRate(), Channels: 2}
	dst := target.Resolve(src)
	samples := pcm.Convert(pcm.DecodeLE16(raw), src, dst)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("device: create %q: %w", path, err)
	}
	enc := wav.NewEncoder(f, dst.SampleRate, 16, dst.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: dst.Channels, SampleRate: dst.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("device: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("device: finish wav: %w", err)
	}
	return f.Close()
}
