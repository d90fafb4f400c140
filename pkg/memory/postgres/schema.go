// Package postgres keeps the Raa'ee exchange journal and crop vector index
// in PostgreSQL. Vectors live in a pgvector column searched through an HNSW
// cosine index; the extension is created on first migration.
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	_ = store.Exchanges().Record(ctx, ex)
//	hits, _ := store.Crops().Nearest(ctx, vec, 3)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDimensionChanged is returned by [Migrate] when crop_vectors was created
// for a different embedding width than the one configured. Drop the table
// and let the next knowledge sync rebuild it.
var ErrDimensionChanged = errors.New("postgres: embedding dimensions changed")

// migrationLock is the advisory lock key serialising migrations across
// replicas started at the same time.
const migrationLock = 0x72616565 // "raee"

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     func(dims int) string
}

var migrations = []migration{
	{1, "exchanges", func(int) string {
		return `
CREATE TABLE IF NOT EXISTS exchanges (
    id                 TEXT         PRIMARY KEY,
    transcription      TEXT         NOT NULL DEFAULT '',
    translation        TEXT         NOT NULL DEFAULT '',
    reply              TEXT         NOT NULL DEFAULT '',
    crop               TEXT         NOT NULL DEFAULT '',
    audio_key          TEXT         NOT NULL DEFAULT '',
    audio_bytes        INTEGER      NOT NULL DEFAULT 0,
    audio_duration_ns  BIGINT       NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges (created_at DESC);`
	}},
	{2, "crop_vectors", func(dims int) string {
		return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS crop_vectors (
    name        TEXT         PRIMARY KEY,
    digest      TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crop_vectors_embedding
    ON crop_vectors USING hnsw (embedding vector_cosine_ops);`, dims)
	}},
	{3, "exchanges_crop_index", func(int) string {
		return `CREATE INDEX IF NOT EXISTS idx_exchanges_crop ON exchanges (crop) WHERE crop <> '';`
	}},
}

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction, and then checks that the vector column width
// matches dims. It is safe to run on every start and from several replicas.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", dims)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLock); err != nil {
		return fmt.Errorf("postgres migrate: lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLock)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER      PRIMARY KEY,
    name        TEXT         NOT NULL,
    applied_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("postgres migrate: bookkeeping table: %w", err)
	}

	var current int
	if err := conn.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("postgres migrate: read version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql(dims)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres migrate: %d_%s: %w", m.version, m.name, err)
		}
	}
	return checkDimensions(ctx, conn, dims)
}

// checkDimensions compares the declared width of crop_vectors.embedding,
// which pgvector stores as the column's type modifier.
func checkDimensions(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, dims int) error {
	var have int
	err := q.QueryRow(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'crop_vectors'::regclass AND attname = 'embedding'`).Scan(&have)
	if err != nil {
		return fmt.Errorf("postgres migrate: inspect crop_vectors: %w", err)
	}
	if have != dims {
		return fmt.Errorf("%w: table has %d, config wants %d", ErrDimensionChanged, have, dims)
	}
	return nil
}
