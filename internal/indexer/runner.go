package indexer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"ammstate/internal/chain"
	"ammstate/internal/metrics"
	"ammstate/internal/model"
	"ammstate/internal/paths"
	"ammstate/internal/registry"
	"ammstate/internal/storage"
)

// DefaultDedupeSize is the number of recent log identities remembered for dedupe.
const DefaultDedupeSize = 65_536

const maxRetryBackoff = 30 * time.Second

// LogSource is the chain surface the runner reads from. *chain.Client implements it.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// PathLookup finds the paths starting at a pool.
type PathLookup interface {
	PathsForPool(chainID uint64, pool common.Address) (paths.Entry, bool)
}

// Update reports that a swap changed a pool that starts known paths.
type Update struct {
	ChainID uint64
	Pool    common.Address
	Block   uint64
	TxHash  common.Hash
	Topic   common.Hash
	Paths   paths.Entry
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	ChainID      uint64
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	StateName    string
	MaxRetries   int
	RetryBackoff time.Duration
	// Follow keeps polling for new blocks once the head is reached. ToBlock is ignored.
	Follow       bool
	PollInterval time.Duration
	DedupeSize   int
}

// Deps are the collaborators of a Runner. Source and Registry are required.
type Deps struct {
	Source   LogSource
	Registry *registry.Registry
	Paths    PathLookup
	State    storage.StateStore
	Raw      storage.Storage
	Errors   storage.ErrorSink
	OnUpdate func(Update)
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Runner streams the logs of registered pools from the chain and applies them.
type Runner struct {
	cfg    RunConfig
	deps   Deps
	logger *zap.Logger
	seen   *lru.Cache
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps) (*Runner, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = DefaultDedupeSize
	}
	if cfg.StateName == "" {
		cfg.StateName = fmt.Sprintf("sync-%d", cfg.ChainID)
	}
	seen, err := lru.New(cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With(zap.Uint64("chain_id", cfg.ChainID)),
		seen:   seen,
	}, nil
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.deps.Source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Follow && r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero in follow mode")
	}

	last, err := r.lastApplied(ctx)
	if err != nil {
		return err
	}

	for {
		head := r.cfg.ToBlock
		if head == 0 || r.cfg.Follow {
			latest, err := r.latestWithRetry(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			head = latest
		}

		if window, ok := Resume(r.cfg.FromBlock, last, head); ok {
			if err := r.sync(ctx, window); err != nil {
				return err
			}
			last = window.To
		} else if !r.cfg.Follow {
			r.logger.Info("nothing to sync", zap.Uint64("last_processed", last), zap.Uint64("head", head))
		}

		if !r.cfg.Follow {
			return nil
		}
		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// lastApplied returns the highest block already folded into the pools, taken from
// the registry and the stored checkpoint.
func (r *Runner) lastApplied(ctx context.Context) (uint64, error) {
	last := r.deps.Registry.LastProcessedBlock()
	if r.deps.State == nil {
		return last, nil
	}
	saved, ok, err := r.deps.State.LoadState(ctx, r.cfg.StateName)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	if ok && saved > last {
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", saved))
		last = saved
	}
	return last, nil
}

func (r *Runner) sync(ctx context.Context, window BlockRange) error {
	ranges, err := SplitRange(window.From, window.To, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		addresses := r.deps.Registry.AllAddresses()
		topics := r.deps.Registry.Topics()
		if len(addresses) == 0 {
			r.logger.Warn("no pools registered, skipping range", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		} else {
			r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
			logs, err := r.filterLogsWithRetry(ctx, blockRange, addresses, topics)
			if err != nil {
				return fmt.Errorf("filter logs: %w", err)
			}
			if err := r.process(ctx, logs); err != nil {
				return err
			}
		}

		r.deps.Registry.SetLastProcessedBlock(blockRange.To)
		r.deps.Metrics.SetLastProcessedBlock(blockRange.To)
		if r.deps.State != nil {
			if err := r.deps.State.SaveState(ctx, r.cfg.StateName, blockRange.To); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
		}
	}
	return nil
}

// process applies a batch of logs in order and writes the raw records and rejects.
func (r *Runner) process(ctx context.Context, logs []types.Log) error {
	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	var rejected []model.DecodeError
	var applied int

	for _, log := range logs {
		if r.isDuplicate(log) {
			continue
		}
		if r.deps.Raw != nil {
			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildLogRecord(r.cfg.ChainID, log, ts, ingestedAt))
		}
		ok, err := r.Apply(log)
		if err != nil {
			rejected = append(rejected, r.rejection(log, err))
			continue
		}
		if ok {
			applied++
		}
	}

	if r.deps.Raw != nil {
		if err := r.deps.Raw.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
	}
	if r.deps.Errors != nil && len(rejected) > 0 {
		if err := r.deps.Errors.PutDecodeErrors(rejected); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}

	r.logger.Info("batch complete", zap.Int("logs", len(logs)), zap.Int("applied", applied), zap.Int("rejected", len(rejected)))
	return nil
}

// Apply routes one log to its pool. It reports whether a registered pool accepted it. A log
// that the pool rejects is returned as an error and leaves the pool unchanged.
func (r *Runner) Apply(log types.Log) (bool, error) {
	if log.Removed || len(log.Topics) == 0 {
		return false, nil
	}
	p, ok := r.deps.Registry.GetPool(log.Address)
	if !ok {
		return false, nil
	}

	if err := p.ApplyLog(log); err != nil {
		if errors.Is(err, model.ErrDecode) {
			r.deps.Metrics.DecodeError()
		}
		r.logger.Warn("log rejected",
			zap.String("pool", log.Address.Hex()),
			zap.Uint64("block", log.BlockNumber),
			zap.String("tx", log.TxHash.Hex()),
			zap.Error(err),
		)
		return false, err
	}
	r.deps.Metrics.LogApplied(string(p.Kind()))

	topic := log.Topics[0]
	if r.deps.Paths == nil || !r.deps.Registry.IsProfitableTopic(topic) {
		return true, nil
	}
	entry, ok := r.deps.Paths.PathsForPool(r.cfg.ChainID, log.Address)
	if !ok {
		return true, nil
	}
	r.deps.Metrics.PathsUpdated(len(entry.Source.Paths))
	if r.deps.OnUpdate != nil {
		r.deps.OnUpdate(Update{
			ChainID: r.cfg.ChainID,
			Pool:    log.Address,
			Block:   log.BlockNumber,
			TxHash:  log.TxHash,
			Topic:   topic,
			Paths:   entry,
		})
	}
	return true, nil
}

// retry runs fn under the configured policy and logs every failed attempt as op.
func (r *Runner) retry(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) error {
	return chain.Retry(ctx, chain.RetryPolicy{
		MaxRetries: r.cfg.MaxRetries,
		Backoff:    r.cfg.RetryBackoff,
		MaxBackoff: maxRetryBackoff,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			r.logger.Warn(op+" failed",
				append(fields, zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))...,
			)
		},
	}, fn)
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = r.deps.Source.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, topics)
		return err
	}, zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	return logs, err
}

func (r *Runner) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := r.retry(ctx, "latest block fetch", func(ctx context.Context) error {
		var err error
		latest, err = r.deps.Source.LatestBlockNumber(ctx)
		return err
	})
	return latest, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry(ctx, "block timestamp fetch", func(ctx context.Context) error {
		var err error
		ts, err = r.deps.Source.BlockTimestamp(ctx, blockNumber)
		return err
	}, zap.Uint64("block_number", blockNumber))
	return ts, err
}

func (r *Runner) rejection(log types.Log, err error) model.DecodeError {
	p, _ := r.deps.Registry.GetPool(log.Address)
	return decodeErrorFromLog(r.cfg.ChainID, log, p, err)
}

// isDuplicate remembers the identity of recent logs. Mint and Burn must not be applied twice.
func (r *Runner) isDuplicate(log types.Log) bool {
	id := logID(log)
	if ok, _ := r.seen.ContainsOrAdd(id, struct{}{}); ok {
		return true
	}
	return false
}

func logID(log types.Log) uint64 {
	var buf [common.HashLength + 16]byte
	copy(buf[:common.HashLength], log.TxHash[:])
	binary.BigEndian.PutUint64(buf[common.HashLength:], log.BlockNumber)
	binary.BigEndian.PutUint64(buf[common.HashLength+8:], uint64(log.Index))
	return xxhash.Sum64(buf[:])
}
