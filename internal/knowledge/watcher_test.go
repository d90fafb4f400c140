package knowledge_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/raaee/internal/knowledge"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's modification time forward so the watcher sees a
// change even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	ts := time.Now().Add(by)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, path, sampleKB)

	w, err := knowledge.NewWatcher(path, nil, knowledge.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Len(); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
}

func TestWatcher_InitialLoadFailsOnInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, path, "[]")

	if _, err := knowledge.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial file")
	}
	if _, err := knowledge.NewWatcher(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, path, sampleKB)

	var (
		mu  sync.Mutex
		got *knowledge.Base
	)
	changed := make(chan struct{}, 1)
	w, err := knowledge.NewWatcher(path, func(b *knowledge.Base) {
		mu.Lock()
		got = b
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, knowledge.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, `{"mango": {"season": "summer"}}`)
	bumpMtime(t, path, time.Second)

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called")
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Len() != 1 {
		t.Errorf("reloaded Len = %d, want 1", got.Len())
	}
	if w.Current() != got {
		t.Error("Current() does not return the reloaded base")
	}
}

func TestWatcher_InvalidUpdateKeepsPrevious(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, path, sampleKB)

	called := make(chan struct{}, 1)
	w, err := knowledge.NewWatcher(path, func(*knowledge.Base) { called <- struct{}{} },
		knowledge.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	before := w.Current()

	writeFile(t, path, `{"broken": `)
	bumpMtime(t, path, time.Second)

	select {
	case <-called:
		t.Fatal("onChange called for an invalid file")
	case <-time.After(200 * time.Millisecond):
	}
	if w.Current() != before {
		t.Error("invalid file replaced the current base")
	}
}

func TestWatcher_TouchWithoutChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.json")
	writeFile(t, path, sampleKB)

	called := make(chan struct{}, 1)
	w, err := knowledge.NewWatcher(path, func(*knowledge.Base) { called <- struct{}{} },
		knowledge.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	bumpMtime(t, path, time.Second)

	select {
	case <-called:
		t.Fatal("onChange called although content is identical")
	case <-time.After(200 * time.Millisecond):
	}
	w.Stop() // second Stop is a no-op
}
