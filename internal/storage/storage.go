package storage

import (
	"context"

	"ammstate/internal/model"
)

// Storage defines a sink for raw log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// SnapshotSink receives pool snapshots.
type SnapshotSink interface {
	PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error
}

// ErrorSink receives logs that could not be applied.
type ErrorSink interface {
	PutDecodeErrors(errs []model.DecodeError) error
}

// StateStore persists the last processed block under a name.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}
