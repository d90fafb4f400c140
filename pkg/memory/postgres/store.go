package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/raaee/pkg/memory"
)

var (
	_ memory.ExchangeLog = (*Journal)(nil)
	_ memory.CropIndex   = (*Vectors)(nil)
)

// Store owns the connection pool shared by the [Journal] and [Vectors]
// layers. It is safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	journal *Journal
	vectors *Vectors
}

// NewStore migrates the database at dsn and opens a pool whose connections
// understand the pgvector types.
//
// Migration runs on a short-lived pool first: registering pgvector types
// needs the extension that the migration creates.
func NewStore(ctx context.Context, dsn string, dims int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if err := bootstrap(ctx, cfg.Copy(), dims); err != nil {
		return nil, err
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &Store{
		pool:    pool,
		journal: &Journal{pool: pool},
		vectors: &Vectors{pool: pool, dims: dims},
	}, nil
}

func bootstrap(ctx context.Context, cfg *pgxpool.Config, dims int) error {
	cfg.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres store: connect: %w", err)
	}
	defer pool.Close()
	if err := Migrate(ctx, pool, dims); err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	return nil
}

// Exchanges returns the exchange journal.
func (s *Store) Exchanges() *Journal { return s.journal }

// Crops returns the crop vector index.
func (s *Store) Crops() *Vectors { return s.vectors }

// Ping is the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }
