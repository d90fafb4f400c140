// Package semantic indexes knowledge-base entries as embeddings so that a
// question which names no crop can still be routed to the closest entry.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/provider/embeddings"
)

var _ knowledge.Semantic = (*Index)(nil)

// ErrEmptyIndex is returned by Nearest when no crop has been indexed.
var ErrEmptyIndex = errors.New("semantic: index is empty")

// Index keeps a [memory.CropIndex] in step with a knowledge base and answers
// nearest-crop queries against it.
type Index struct {
	store    memory.CropIndex
	embedder embeddings.Provider

	// syncMu serialises Sync so two reloads cannot interleave upserts.
	syncMu sync.Mutex
}

// New returns an Index over store using embedder for both documents and
// queries.
func New(store memory.CropIndex, embedder embeddings.Provider) *Index {
	return &Index{store: store, embedder: embedder}
}

// SyncStats summarises one [Index.Sync].
type SyncStats struct {
	Embedded  int
	Unchanged int
}

// Sync embeds every entry of base whose document changed since the last sync
// and prunes crops that no longer exist.
func (ix *Index) Sync(ctx context.Context, base *knowledge.Base) (SyncStats, error) {
	ix.syncMu.Lock()
	defer ix.syncMu.Unlock()

	stored, err := ix.store.Digests(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("semantic: sync: %w", err)
	}

	names := base.Names()
	var (
		stale   []string
		docs    []string
		digests []string
		stats   SyncStats
	)
	for _, name := range names {
		doc := base.Document(name)
		d := digest(ix.embedder.ModelID(), doc)
		if stored[name] == d {
			stats.Unchanged++
			continue
		}
		stale = append(stale, name)
		docs = append(docs, doc)
		digests = append(digests, d)
	}

	if len(docs) > 0 {
		vecs, err := ix.embedder.EmbedBatch(ctx, docs)
		if err != nil {
			return stats, fmt.Errorf("semantic: embed %d entries: %w", len(docs), err)
		}
		if len(vecs) != len(docs) {
			return stats, fmt.Errorf("semantic: embedder returned %d vectors for %d entries", len(vecs), len(docs))
		}
		batch := make([]memory.CropVector, len(docs))
		for i := range docs {
			batch[i] = memory.CropVector{Name: stale[i], Digest: digests[i], Embedding: vecs[i]}
		}
		if err := ix.store.Upsert(ctx, batch); err != nil {
			return stats, fmt.Errorf("semantic: sync: %w", err)
		}
		stats.Embedded = len(batch)
	}

	if err := ix.store.Prune(ctx, names); err != nil {
		return stats, fmt.Errorf("semantic: sync: %w", err)
	}
	slog.Debug("semantic index synced", "embedded", stats.Embedded, "unchanged", stats.Unchanged)
	return stats, nil
}

// Nearest implements [knowledge.Semantic].
func (ix *Index) Nearest(ctx context.Context, query string) (string, float64, error) {
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return "", 0, fmt.Errorf("semantic: embed query: %w", err)
	}
	hits, err := ix.store.Nearest(ctx, vec, 1)
	if err != nil {
		return "", 0, fmt.Errorf("semantic: nearest: %w", err)
	}
	if len(hits) == 0 {
		return "", 0, ErrEmptyIndex
	}
	return hits[0].Name, hits[0].Distance, nil
}

// digest ties a stored vector to both the document text and the model that
// embedded it, so switching models re-embeds everything.
func digest(model, doc string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(doc))
	return hex.EncodeToString(h.Sum(nil))
}
