package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/raaee/pkg/memory"
)

// Vectors is the L2 memory layer backed by the crop_vectors table with
// a pgvector HNSW index for approximate nearest-neighbour search.
//
// Obtain one via [Store.Crops] rather than constructing directly.
type Vectors struct {
	pool *pgxpool.Pool
	dims int
}

// Digests implements [memory.CropIndex].
func (s *Vectors) Digests(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, digest FROM crop_vectors`)
	if err != nil {
		return nil, fmt.Errorf("crop index: digests: %w", err)
	}
	out := make(map[string]string)
	var name, digest string
	_, err = pgx.ForEachRow(rows, []any{&name, &digest}, func() error {
		out[name] = digest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("crop index: digests: %w", err)
	}
	return out, nil
}

// Upsert implements [memory.CropIndex]. All vectors are sent in one batch.
func (s *Vectors) Upsert(ctx context.Context, vectors []memory.CropVector) error {
	if len(vectors) == 0 {
		return nil
	}
	const q = `
		INSERT INTO crop_vectors (name, digest, embedding, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE SET
		    digest     = EXCLUDED.digest,
		    embedding  = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, v := range vectors {
		if s.dims > 0 && len(v.Embedding) != s.dims {
			return fmt.Errorf("crop index: upsert %q: embedding has %d dimensions, want %d", v.Name, len(v.Embedding), s.dims)
		}
		batch.Queue(q, v.Name, v.Digest, pgvector.NewVector(v.Embedding))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("crop index: upsert: %w", err)
	}
	return nil
}

// Prune implements [memory.CropIndex].
func (s *Vectors) Prune(ctx context.Context, keep []string) error {
	if keep == nil {
		keep = []string{}
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM crop_vectors WHERE NOT (name = ANY($1))`, keep); err != nil {
		return fmt.Errorf("crop index: prune: %w", err)
	}
	return nil
}

// Nearest implements [memory.CropIndex].
func (s *Vectors) Nearest(ctx context.Context, embedding []float32, topK int) ([]memory.CropResult, error) {
	if topK <= 0 {
		topK = 1
	}
	const q = `
		SELECT name, embedding <=> $1 AS distance
		FROM   crop_vectors
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("crop index: nearest: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.CropResult, error) {
		var r memory.CropResult
		err := row.Scan(&r.Name, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("crop index: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.CropResult{}
	}
	return results, nil
}
