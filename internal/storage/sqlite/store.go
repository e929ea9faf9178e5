// Package sqlite keeps pool snapshots and indexer progress in an embedded database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"ammstate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id       INTEGER NOT NULL,
	pool_address   TEXT    NOT NULL,
	pool_id        TEXT    NOT NULL,
	kind           TEXT    NOT NULL,
	sub_type       TEXT    NOT NULL,
	token0         TEXT    NOT NULL,
	token1         TEXT    NOT NULL,
	fee            INTEGER NOT NULL,
	reserve0       TEXT,
	reserve1       TEXT,
	tick_spacing   INTEGER,
	sqrt_price_x96 TEXT,
	tick           INTEGER,
	liquidity      TEXT,
	ticks          TEXT,
	updated_at     TEXT    NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block INTEGER NOT NULL,
	updated_at           TEXT    NOT NULL
);
`

// Store is the sqlite counterpart of the postgres store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPoolSnapshots replaces the stored snapshot of each pool in one transaction.
func (s *Store) UpsertPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pool_snapshots (
			chain_id, pool_address, pool_id, kind, sub_type, token0, token1, fee,
			reserve0, reserve1, tick_spacing, sqrt_price_x96, tick, liquidity, ticks, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (chain_id, pool_address) DO UPDATE SET
			pool_id = excluded.pool_id,
			kind = excluded.kind,
			sub_type = excluded.sub_type,
			token0 = excluded.token0,
			token1 = excluded.token1,
			fee = excluded.fee,
			reserve0 = excluded.reserve0,
			reserve1 = excluded.reserve1,
			tick_spacing = excluded.tick_spacing,
			sqrt_price_x96 = excluded.sqrt_price_x96,
			tick = excluded.tick,
			liquidity = excluded.liquidity,
			ticks = excluded.ticks,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		var ticks interface{}
		if len(snap.Ticks) > 0 {
			raw, err := sonnet.Marshal(snap.Ticks)
			if err != nil {
				return fmt.Errorf("marshal ticks of %s: %w", snap.Address, err)
			}
			ticks = string(raw)
		}
		_, err := stmt.ExecContext(ctx,
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
			snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", snap.Address, err)
		}
	}
	return tx.Commit()
}

func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	return s.UpsertPoolSnapshots(ctx, snapshots)
}

// PoolSnapshot loads the stored snapshot of one pool.
func (s *Store) PoolSnapshot(ctx context.Context, chainID uint64, address string) (model.PoolSnapshot, bool, error) {
	var (
		snap                                    model.PoolSnapshot
		fee                                     int64
		reserve0, reserve1, sqrtPrice, liq, raw sql.NullString
		spacing, tick                           sql.NullInt64
		updatedAt                               string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT pool_id, kind, sub_type, token0, token1, fee, reserve0, reserve1,
			tick_spacing, sqrt_price_x96, tick, liquidity, ticks, updated_at
		FROM pool_snapshots WHERE chain_id = ? AND pool_address = ?
	`, int64(chainID), address)
	err := row.Scan(&snap.ID, &snap.Kind, &snap.SubType, &snap.Token0, &snap.Token1, &fee,
		&reserve0, &reserve1, &spacing, &sqrtPrice, &tick, &liq, &raw, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}
	snap.ChainID = chainID
	snap.Address = address
	snap.Fee = uint64(fee)
	snap.Reserve0 = reserve0.String
	snap.Reserve1 = reserve1.String
	snap.TickSpacing = int32(spacing.Int64)
	snap.SqrtPriceX96 = sqrtPrice.String
	snap.Tick = int32(tick.Int64)
	snap.Liquidity = liq.String
	if raw.Valid && raw.String != "" {
		if err := sonnet.Unmarshal([]byte(raw.String), &snap.Ticks); err != nil {
			return model.PoolSnapshot{}, false, fmt.Errorf("decode ticks of %s: %w", address, err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		snap.UpdatedAt = ts
	}
	return snap, true, nil
}

func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	err := s.db.QueryRowContext(ctx, `SELECT last_processed_block FROM indexer_state WHERE name = ?`, name).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			last_processed_block = excluded.last_processed_block,
			updated_at = excluded.updated_at
	`, name, int64(block), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
