// Package discovery builds pools from chain state. It reconciles the contract shapes of
// many AMM forks by batching every candidate accessor into one multicall and taking the
// first shape that decodes.
package discovery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/chain"
	"ammstate/internal/metrics"
	"ammstate/internal/model"
	"ammstate/internal/pool"
)

// ChunkSize bounds the number of calls per multicall.
const ChunkSize = 250

// ChainReader is the single-call surface discovery needs besides multicall.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Multicaller executes a batch where each call may fail on its own.
type Multicaller interface {
	TryAggregate(ctx context.Context, calls []chain.Call, blockNumber *big.Int) ([]chain.Result, error)
}

// FeeSource supplies the factory fee overrides. *registry.Registry implements it, so
// updates made there apply to the next fetch.
type FeeSource interface {
	// FactoryToFee overrides the fee of every pair created by a factory.
	FactoryToFee() map[common.Address]uint64
	// AeroFactories are asked for getPair when no other fee source answers.
	AeroFactories() []common.Address
}

// Options carries the per-chain configuration discovery consults.
type Options struct {
	ChainID uint64
	Fees    FeeSource
	// Retry applies to each multicall chunk.
	Retry chain.RetryPolicy
	// RamsesQuoters maps Ramses factories to the quoter used for calibration.
	RamsesQuoters map[common.Address]common.Address
	// FactoryDefaultFees and DefaultFee end the V2 fee chain.
	FactoryDefaultFees map[common.Address]uint64
	DefaultFee         uint64
	TokenCacheSize     int
}

// Fetcher discovers pools. It holds no lock while talking to the chain.
type Fetcher struct {
	reader  ChainReader
	calls   Multicaller
	opts    Options
	tokens  *TokenCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewFetcher(reader ChainReader, calls Multicaller, opts Options, logger *zap.Logger, m *metrics.Metrics) (*Fetcher, error) {
	if reader == nil || calls == nil {
		return nil, fmt.Errorf("chain reader and multicaller are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		reader:  reader,
		calls:   calls,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
	tokens, err := NewTokenCache(opts.TokenCacheSize, f.batch, logger)
	if err != nil {
		return nil, err
	}
	f.tokens = tokens
	return f, nil
}

// Identify calls liquidity(), which only concentrated-liquidity pools expose.
func (f *Fetcher) Identify(ctx context.Context, address common.Address, block *big.Int) (pool.Kind, error) {
	parsed, err := v3PoolABI.get()
	if err != nil {
		return "", fmt.Errorf("parse v3 pool abi: %w", err)
	}
	data, err := parsed.Pack("liquidity")
	if err != nil {
		return "", fmt.Errorf("pack liquidity: %w", err)
	}
	if _, err := f.reader.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, block); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return pool.KindV2, nil
	}
	return pool.KindV3, nil
}

// Fetch identifies the pool at address and builds it from state at block (nil for latest).
// A failed fetch returns no pool.
func (f *Fetcher) Fetch(ctx context.Context, address common.Address, block *big.Int) (pool.Pool, error) {
	kind, err := f.Identify(ctx, address, block)
	if err != nil {
		f.metrics.DiscoveryFailed()
		return nil, fmt.Errorf("identify %s: %w", address.Hex(), err)
	}

	var p pool.Pool
	switch kind {
	case pool.KindV3:
		p, err = f.FetchV3(ctx, address, block)
	default:
		p, err = f.FetchV2(ctx, address, block)
	}
	if err != nil {
		f.metrics.DiscoveryFailed()
		return nil, err
	}
	f.metrics.PoolDiscovered(string(p.Kind()), string(p.SubType()))
	return p, nil
}

// call is one contract call of a batch.
type call struct {
	target common.Address
	abi    *lazyABI
	method string
	args   []interface{}
}

// reply is the outcome of one call. values is nil when the return data did not unpack
// with the declared outputs; data is kept for shape matching.
type reply struct {
	ok     bool
	data   []byte
	values []interface{}
}

func (r reply) decoded() bool {
	return r.ok && len(r.values) > 0
}

// batch packs calls, runs them through the multicaller in chunks and unpacks the results.
// Only transport failures are errors; a failed call is reported in its reply.
func (f *Fetcher) batch(ctx context.Context, block *big.Int, calls []call) ([]reply, error) {
	packed := make([]chain.Call, len(calls))
	for i, c := range calls {
		parsed, err := c.abi.get()
		if err != nil {
			return nil, fmt.Errorf("parse abi for %s: %w", c.method, err)
		}
		data, err := parsed.Pack(c.method, c.args...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", c.method, err)
		}
		packed[i] = chain.Call{Target: c.target, CallData: data}
	}

	replies := make([]reply, 0, len(calls))
	for start := 0; start < len(packed); start += ChunkSize {
		end := start + ChunkSize
		if end > len(packed) {
			end = len(packed)
		}
		results, err := f.aggregate(ctx, packed[start:end], block)
		if err != nil {
			return nil, err
		}
		for i, res := range results {
			r := reply{ok: res.Success && len(res.ReturnData) > 0, data: res.ReturnData}
			if r.ok {
				parsed, _ := calls[start+i].abi.get()
				if values, err := parsed.Unpack(calls[start+i].method, res.ReturnData); err == nil {
					r.values = values
				}
			}
			replies = append(replies, r)
		}
	}
	return replies, nil
}

// aggregate runs one chunk under the retry policy. Results are only taken from an
// attempt that succeeded.
func (f *Fetcher) aggregate(ctx context.Context, calls []chain.Call, block *big.Int) ([]chain.Result, error) {
	policy := f.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.logger.Debug("multicall failed",
			zap.Int("calls", len(calls)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	}
	var results []chain.Result
	err := chain.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		results, err = f.calls.TryAggregate(ctx, calls, block)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("multicall %d calls: %w", len(calls), err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

func (f *Fetcher) factoryFees() map[common.Address]uint64 {
	if f.opts.Fees == nil {
		return nil
	}
	return f.opts.Fees.FactoryToFee()
}

func (f *Fetcher) aeroFactories() []common.Address {
	if f.opts.Fees == nil {
		return nil
	}
	return f.opts.Fees.AeroFactories()
}

func replyAddress(r reply) (common.Address, bool) {
	if !r.decoded() {
		return common.Address{}, false
	}
	addr, ok := r.values[0].(common.Address)
	return addr, ok
}

func replyBig(r reply) (*big.Int, bool) {
	if !r.decoded() {
		return nil, false
	}
	v, err := toBig(r.values[0])
	if err != nil {
		return nil, false
	}
	return v, true
}

func replyBool(r reply) (bool, bool) {
	if !r.decoded() {
		return false, false
	}
	b, ok := r.values[0].(bool)
	return b, ok
}

func toBig(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("%w: unsupported int type %T", model.ErrDecode, value)
	}
}
