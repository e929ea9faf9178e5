package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ammstate/internal/config"
	"ammstate/internal/indexer"
	"ammstate/internal/model"
	"ammstate/internal/registry"
	"ammstate/internal/storage"
	"ammstate/internal/storage/postgres"
	"ammstate/internal/storage/sqlite"
)

// backend is the persistence selected by --state-backend. snapshots is nil for the file
// backend unless --snapshots-out is set.
type backend struct {
	state     storage.StateStore
	snapshots []storage.SnapshotSink
	close     func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{close: func() {}}

	switch cfg.StateBackend {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		b.state = store
		b.snapshots = append(b.snapshots, store)
		b.close = store.Close
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.state = store
		b.snapshots = append(b.snapshots, store)
		b.close = func() {
			if err := store.Close(); err != nil {
				logger.Warn("close sqlite", zap.Error(err))
			}
		}
	default:
		b.state = indexer.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	}

	if cfg.SnapshotsOut != "" {
		b.snapshots = append(b.snapshots, storage.NewJsonlSnapshots(cfg.SnapshotsOut))
	}
	logger.Info("state backend", zap.String("backend", cfg.StateBackend), zap.Int("snapshot_sinks", len(b.snapshots)))
	return b, nil
}

// writeSnapshots sends the state of every registered pool to each sink.
func writeSnapshots(ctx context.Context, reg *registry.Registry, sinks []storage.SnapshotSink) error {
	if len(sinks) == 0 {
		return nil
	}
	pools := reg.AllPools()
	snapshots := make([]model.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		snap := p.Snapshot()
		snap.ChainID = reg.ChainID()
		snapshots = append(snapshots, snap)
	}
	for _, sink := range sinks {
		if err := sink.PutSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("write snapshots: %w", err)
		}
	}
	return nil
}
