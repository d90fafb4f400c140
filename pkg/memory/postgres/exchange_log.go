package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/types"
)

// Journal is the L1 memory layer backed by the exchanges table.
//
// Obtain one via [Store.Exchanges] rather than constructing directly.
type Journal struct {
	pool *pgxpool.Pool
}

const exchangeColumns = `id, transcription, translation, reply, crop, audio_key, audio_bytes, audio_duration_ns, created_at`

// Record implements [memory.ExchangeLog].
func (s *Journal) Record(ctx context.Context, ex types.Exchange) error {
	const q = `
		INSERT INTO exchanges (` + exchangeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := ex.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		ex.ID,
		ex.Transcription,
		ex.Translation,
		ex.Reply,
		ex.Crop,
		ex.AudioKey,
		ex.AudioBytes,
		ex.AudioDuration.Nanoseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("exchange log: record: %w", err)
	}
	return nil
}

// Recent implements [memory.ExchangeLog].
func (s *Journal) Recent(ctx context.Context, limit int) ([]types.Exchange, error) {
	if limit <= 0 {
		limit = memory.DefaultRecentLimit
	}
	const q = `
		SELECT ` + exchangeColumns + `
		FROM   exchanges
		ORDER  BY created_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("exchange log: recent: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanExchange)
	if err != nil {
		return nil, fmt.Errorf("exchange log: scan rows: %w", err)
	}
	if out == nil {
		out = []types.Exchange{}
	}
	return out, nil
}

// Get implements [memory.ExchangeLog].
func (s *Journal) Get(ctx context.Context, id string) (types.Exchange, error) {
	const q = `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return types.Exchange{}, fmt.Errorf("exchange log: get: %w", err)
	}
	ex, err := pgx.CollectExactlyOneRow(rows, scanExchange)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Exchange{}, memory.ErrNotFound
	}
	if err != nil {
		return types.Exchange{}, fmt.Errorf("exchange log: get: %w", err)
	}
	return ex, nil
}

func scanExchange(row pgx.CollectableRow) (types.Exchange, error) {
	var (
		ex         types.Exchange
		durationNS int64
	)
	if err := row.Scan(
		&ex.ID,
		&ex.Transcription,
		&ex.Translation,
		&ex.Reply,
		&ex.Crop,
		&ex.AudioKey,
		&ex.AudioBytes,
		&durationNS,
		&ex.CreatedAt,
	); err != nil {
		return types.Exchange{}, err
	}
	ex.AudioDuration = time.Duration(durationNS)
	return ex, nil
}
