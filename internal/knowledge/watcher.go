package knowledge

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors the knowledge file and calls a callback when its content
// changes. It polls the modification time and only re-parses when it moved;
// a touched file with identical content is ignored. Invalid files are
// logged and the previous base stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(*Base)

	mu       sync.Mutex
	current  *Base
	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the knowledge file immediately and starts polling it in a
// background goroutine. onChange may be nil.
func NewWatcher(path string, onChange func(*Base), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	base, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("knowledge: watcher initial load: %w", err)
	}
	w.current = base
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid base.
func (w *Watcher) Current() *Base {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("knowledge watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	base, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("knowledge watcher: keeping previous knowledge base", "path", w.path, "err", err)
		w.mu.Lock()
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	w.current = base
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("knowledge watcher: knowledge base reloaded", "path", w.path, "entries", base.Len())

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(base)
	}
}

func (w *Watcher) loadAndHash() (*Base, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	base, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	return base, sha256.Sum256(data), info.ModTime(), nil
}
