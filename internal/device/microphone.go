// Package device provides the terminal client's stand-ins for the browser's
// media collaborators: a microphone that replays an encoded recording in
// fragments and a player that turns synthesised MP3 replies into WAV files.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/voicechat"
	"github.com/MrWong99/raaee/pkg/api"
)

var (
	_ voicechat.Microphone = (*FileMicrophone)(nil)
	_ voicechat.Capture    = (*fileCapture)(nil)
)

// FileMicrophone captures from an encoded audio file. Every Open replays the
// file from the start, one fragment per interval, the way a MediaRecorder
// delivers timesliced chunks. The capture ends on its own when the file is
// exhausted.
type FileMicrophone struct {
	source        string
	mediaType     string
	fragmentBytes int
	interval      time.Duration
}

// NewFileMicrophone creates a microphone from cfg. Source may be empty; Open
// then reports [voicechat.ErrPermissionDenied].
func NewFileMicrophone(cfg config.MicrophoneConfig) *FileMicrophone {
	m := &FileMicrophone{
		source:        cfg.Source,
		mediaType:     cfg.MediaType,
		fragmentBytes: cfg.FragmentBytes,
		interval:      cfg.FragmentInterval,
	}
	if m.mediaType == "" {
		m.mediaType = mime.TypeByExtension(filepath.Ext(m.source))
	}
	if m.mediaType == "" {
		m.mediaType = api.DefaultMediaType
	}
	if m.fragmentBytes <= 0 {
		m.fragmentBytes = config.DefaultFragmentBytes
	}
	if m.interval < 0 {
		m.interval = 0
	}
	return m
}

// Open implements voicechat.Microphone.
func (m *FileMicrophone) Open(ctx context.Context) (voicechat.Capture, error) {
	if m.source == "" {
		return nil, fmt.Errorf("%w: no capture source configured", voicechat.ErrPermissionDenied)
	}
	f, err := os.Open(m.source)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", voicechat.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("device: open %q: %w", m.source, err)
	}

	c := &fileCapture{
		frags:     make(chan []byte),
		stop:      make(chan struct{}),
		mediaType: m.mediaType,
	}
	go c.run(ctx, f, m.fragmentBytes, m.interval)
	return c, nil
}

type fileCapture struct {
	frags     chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	mediaType string
}

func (c *fileCapture) Fragments() <-chan []byte { return c.frags }
func (c *fileCapture) MediaType() string        { return c.mediaType }

func (c *fileCapture) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *fileCapture) run(ctx context.Context, f *os.File, size int, interval time.Duration) {
	defer close(c.frags)
	defer f.Close()

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			select {
			case c.frags <- buf[:n]:
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			// io.EOF and io.ErrUnexpectedEOF both mean the source is exhausted.
			return
		}
		if tick == nil {
			continue
		}
		select {
		case <-tick:
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
