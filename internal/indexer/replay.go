package indexer

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/model"
	"ammstate/internal/storage"
)

// ReplayStats counts what a replay did with its input.
type ReplayStats struct {
	Total    int
	Applied  int
	Skipped  int
	Rejected int
}

// Replay applies raw log records, in file order, to the registered pools. Records of
// other chains, duplicates and, when topics is non-empty, records with other topic0 are
// skipped. Records that fail to convert or apply are written to the error sink.
func (r *Runner) Replay(ctx context.Context, in io.Reader, topics []common.Hash) (ReplayStats, error) {
	var stats ReplayStats
	filter := make(map[common.Hash]struct{}, len(topics))
	for _, t := range topics {
		filter[t] = struct{}{}
	}

	var rejected []model.DecodeError
	reject := func(de model.DecodeError) {
		stats.Rejected++
		rejected = append(rejected, de)
	}

	err := storage.ReadLogRecords(in, func(record model.LogRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++
		if r.cfg.ChainID != 0 && record.ChainID != 0 && record.ChainID != r.cfg.ChainID {
			stats.Skipped++
			return nil
		}
		log, err := record.ToLog()
		if err != nil {
			reject(decodeErrorFromRecord(record, err))
			return nil
		}
		if len(filter) > 0 {
			if len(log.Topics) == 0 {
				stats.Skipped++
				return nil
			}
			if _, ok := filter[log.Topics[0]]; !ok {
				stats.Skipped++
				return nil
			}
		}
		if r.isDuplicate(log) {
			stats.Skipped++
			return nil
		}
		ok, err := r.Apply(log)
		switch {
		case err != nil:
			reject(r.rejection(log, err))
		case ok:
			stats.Applied++
			if log.BlockNumber > r.deps.Registry.LastProcessedBlock() {
				r.deps.Registry.SetLastProcessedBlock(log.BlockNumber)
			}
		default:
			stats.Skipped++
		}
		return nil
	}, func(line int, err error) {
		reject(model.DecodeError{
			ChainID: r.cfg.ChainID,
			Reason:  model.ReasonDecode,
			Error:   fmt.Sprintf("line %d: %v", line, err),
		})
	})
	if err != nil {
		return stats, err
	}

	if r.deps.Errors != nil && len(rejected) > 0 {
		if err := r.deps.Errors.PutDecodeErrors(rejected); err != nil {
			return stats, fmt.Errorf("store decode errors: %w", err)
		}
	}
	r.logger.Info("replay complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("rejected", stats.Rejected),
	)
	return stats, nil
}
