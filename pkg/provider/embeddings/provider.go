// Package embeddings defines the text embedding backend behind semantic crop
// lookup. Crop entries and questions are embedded into the same space and
// compared by cosine distance in the vector index.
package embeddings

import (
	"context"
	"errors"
)

// ErrDimensionMismatch means a backend returned vectors of a different
// length than it declared. The vector index column has a fixed width, so
// such vectors cannot be stored.
var ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")

// Provider embeds text. Implementations must be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every returned vector.
	Dimensions() int

	ModelID() string
}
