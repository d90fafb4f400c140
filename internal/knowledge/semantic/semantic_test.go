package semantic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/knowledge/semantic"
	"github.com/MrWong99/raaee/pkg/memory"
	memmock "github.com/MrWong99/raaee/pkg/memory/mock"
	embmock "github.com/MrWong99/raaee/pkg/provider/embeddings/mock"
)

func mustBase(t *testing.T, entries map[string]any) *knowledge.Base {
	t.Helper()
	b, err := knowledge.NewBase(entries)
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	return b
}

func TestSync_EmbedsOnlyChangedEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &memmock.CropIndex{}
	emb := &embmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2, ModelIDValue: "m"}
	ix := semantic.New(store, emb)

	base := mustBase(t, map[string]any{
		"wheat": map[string]any{"fertilizer": "DAP"},
		"rice":  map[string]any{"water": "flooded"},
	})
	stats, err := ix.Sync(ctx, base)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if stats.Embedded != 2 || stats.Unchanged != 0 {
		t.Errorf("first Sync stats = %+v, want 2 embedded", stats)
	}

	// Same content: nothing to embed.
	stats, err = ix.Sync(ctx, base)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if stats.Embedded != 0 || stats.Unchanged != 2 {
		t.Errorf("second Sync stats = %+v, want 2 unchanged", stats)
	}
	if got := len(emb.EmbedBatchCalls); got != 1 {
		t.Errorf("EmbedBatch calls = %d, want 1", got)
	}

	// Change one entry and drop the other.
	changed := mustBase(t, map[string]any{"wheat": map[string]any{"fertilizer": "urea"}})
	stats, err = ix.Sync(ctx, changed)
	if err != nil {
		t.Fatalf("third Sync: %v", err)
	}
	if stats.Embedded != 1 {
		t.Errorf("third Sync stats = %+v, want 1 embedded", stats)
	}
	digests, _ := store.Digests(ctx)
	if _, ok := digests["rice"]; ok {
		t.Error("rice should have been pruned")
	}
	if len(digests) != 1 {
		t.Errorf("digests = %v, want only wheat", digests)
	}
}

func TestSync_EmbedError(t *testing.T) {
	t.Parallel()
	store := &memmock.CropIndex{}
	emb := &embmock.Provider{Err: errors.New("quota")}
	ix := semantic.New(store, emb)

	_, err := ix.Sync(context.Background(), mustBase(t, map[string]any{"maize": 1}))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.CallCount("Upsert") != 0 || store.CallCount("Prune") != 0 {
		t.Error("store must not be modified after an embedding failure")
	}
}

func TestSync_DigestsError(t *testing.T) {
	t.Parallel()
	store := &memmock.CropIndex{DigestsErr: errors.New("db down")}
	ix := semantic.New(store, &embmock.Provider{})
	if _, err := ix.Sync(context.Background(), mustBase(t, map[string]any{"maize": 1})); err == nil {
		t.Fatal("expected error")
	}
}

func TestNearest(t *testing.T) {
	t.Parallel()
	store := &memmock.CropIndex{NearestResult: []memory.CropResult{{Name: "cotton", Distance: 0.25}, {Name: "rice", Distance: 0.5}}}
	emb := &embmock.Provider{EmbedResult: []float32{0, 1}}
	ix := semantic.New(store, emb)

	crop, dist, err := ix.Nearest(context.Background(), "white fluffy fibre plant")
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if crop != "cotton" || dist != 0.25 {
		t.Errorf("Nearest = %q, %v, want cotton, 0.25", crop, dist)
	}
	calls := store.Calls()
	if len(calls) != 1 || calls[0].Method != "Nearest" || calls[0].Args[1] != 1 {
		t.Errorf("store calls = %+v, want one Nearest with topK 1", calls)
	}
}

func TestNearest_Empty(t *testing.T) {
	t.Parallel()
	ix := semantic.New(&memmock.CropIndex{}, &embmock.Provider{EmbedResult: []float32{1}})
	if _, _, err := ix.Nearest(context.Background(), "anything"); !errors.Is(err, semantic.ErrEmptyIndex) {
		t.Fatalf("err = %v, want ErrEmptyIndex", err)
	}
}

func TestFinder_UsesSemanticFallback(t *testing.T) {
	t.Parallel()
	base := mustBase(t, map[string]any{"cotton": map[string]any{"pest": "bollworm"}})
	store := &memmock.CropIndex{NearestResult: []memory.CropResult{{Name: "cotton", Distance: 0.25}}}
	ix := semantic.New(store, &embmock.Provider{EmbedResult: []float32{1}})
	f := knowledge.NewFinder(base, knowledge.WithoutPhonetic(), knowledge.WithSemantic(ix, 0.4))

	m, ok := f.Find(context.Background(), "pink bollworm attack on my fibre")
	if !ok {
		t.Fatal("expected semantic match")
	}
	if m.Crop != "cotton" || m.Method != knowledge.MethodSemantic || m.Score != 0.75 {
		t.Errorf("match = %+v", m)
	}
}
