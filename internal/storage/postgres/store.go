package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sugawarayuuta/sonnet"

	"ammstate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id       BIGINT      NOT NULL,
	pool_address   TEXT        NOT NULL,
	pool_id        TEXT        NOT NULL,
	kind           TEXT        NOT NULL,
	sub_type       TEXT        NOT NULL,
	token0         TEXT        NOT NULL,
	token1         TEXT        NOT NULL,
	fee            BIGINT      NOT NULL,
	reserve0       TEXT,
	reserve1       TEXT,
	tick_spacing   INTEGER,
	sqrt_price_x96 TEXT,
	tick           INTEGER,
	liquidity      TEXT,
	ticks          JSONB,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT      NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for pool snapshots and indexer progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPoolSnapshots inserts or replaces the latest snapshot of each pool.
func (s *Store) UpsertPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		var ticks []byte
		if len(snap.Ticks) > 0 {
			raw, err := sonnet.Marshal(snap.Ticks)
			if err != nil {
				return fmt.Errorf("marshal ticks of %s: %w", snap.Address, err)
			}
			ticks = raw
		}
		batch.Queue(`
			INSERT INTO pool_snapshots (
				chain_id, pool_address, pool_id, kind, sub_type, token0, token1, fee,
				reserve0, reserve1, tick_spacing, sqrt_price_x96, tick, liquidity, ticks, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb,$16)
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				pool_id = EXCLUDED.pool_id,
				kind = EXCLUDED.kind,
				sub_type = EXCLUDED.sub_type,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee = EXCLUDED.fee,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				tick_spacing = EXCLUDED.tick_spacing,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				ticks = EXCLUDED.ticks,
				updated_at = EXCLUDED.updated_at
		`,
			int64(snap.ChainID),
			snap.Address,
			snap.ID,
			snap.Kind,
			snap.SubType,
			snap.Token0,
			snap.Token1,
			int64(snap.Fee),
			nullable(snap.Reserve0),
			nullable(snap.Reserve1),
			snap.TickSpacing,
			nullable(snap.SqrtPriceX96),
			snap.Tick,
			nullable(snap.Liquidity),
			ticks,
			snap.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshots makes Store a storage.SnapshotSink.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	return s.UpsertPoolSnapshots(ctx, snapshots)
}

// PoolSnapshotCount returns the number of stored snapshots of a chain.
func (s *Store) PoolSnapshotCount(ctx context.Context, chainID uint64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pool_snapshots WHERE chain_id=$1`, int64(chainID)).Scan(&n)
	return n, err
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
