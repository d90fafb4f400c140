// Package memory defines the two persistence layers used by Raa'ee:
//
//   - L1, the exchange log ([ExchangeLog]): an append-only journal of every
//     answered question, used for auditing and the /exchanges endpoint.
//   - L2, the crop index ([CropIndex]): a vector store over knowledge-base
//     entries, used for the semantic crop lookup fallback.
//
// The interfaces are public so that alternative backends (PostgreSQL with
// pgvector, in-memory) can be swapped in without touching callers.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"

	"github.com/MrWong99/raaee/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("memory: not found")

// ExchangeLog is the L1 journal of answered questions.
type ExchangeLog interface {
	// Record appends ex. ex.ID must be set and unique.
	Record(ctx context.Context, ex types.Exchange) error

	// Recent returns up to limit exchanges, newest first. limit <= 0 lets
	// the implementation choose a default.
	Recent(ctx context.Context, limit int) ([]types.Exchange, error)

	// Get returns the exchange with the given id or [ErrNotFound].
	Get(ctx context.Context, id string) (types.Exchange, error)
}

// CropIndex is the L2 vector index over crop entries.
type CropIndex interface {
	// Digests returns the content digest stored for every indexed crop,
	// keyed by crop name. Callers use it to re-embed only changed entries.
	Digests(ctx context.Context) (map[string]string, error)

	// Upsert inserts or replaces the given vectors.
	Upsert(ctx context.Context, vectors []CropVector) error

	// Prune deletes every crop whose name is not in keep.
	Prune(ctx context.Context, keep []string) error

	// Nearest returns up to topK crops ordered by ascending cosine distance
	// to embedding.
	Nearest(ctx context.Context, embedding []float32, topK int) ([]CropResult, error)
}

// DefaultRecentLimit is the page size used when Recent is called with a
// non-positive limit.
const DefaultRecentLimit = 20
