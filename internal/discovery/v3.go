package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/model"
	"ammstate/internal/pool"
)

const wordSize = 32

const (
	v3Token0 = iota
	v3Token1
	v3Fee
	v3TickSpacing
	v3Slot0
	v3Liquidity
	v3Factory
	v3GlobalState
	v3ActiveIncentive
)

// v3Shape is the price state one candidate decoded.
type v3Shape struct {
	subType      pool.SubType
	sqrtPriceX96 *big.Int
	tick         int32
	fee          uint64
}

// FetchV3 builds a concentrated-liquidity pool, its initialized ticks and, for Ramses
// pools, the ratio conversion factor.
func (f *Fetcher) FetchV3(ctx context.Context, address common.Address, block *big.Int) (*pool.V3Pool, error) {
	calls := []call{
		v3Token0:          {target: address, abi: v3PoolABI, method: "token0"},
		v3Token1:          {target: address, abi: v3PoolABI, method: "token1"},
		v3Fee:             {target: address, abi: v3PoolABI, method: "fee"},
		v3TickSpacing:     {target: address, abi: v3PoolABI, method: "tickSpacing"},
		v3Slot0:           {target: address, abi: v3PoolABI, method: "slot0"},
		v3Liquidity:       {target: address, abi: v3PoolABI, method: "liquidity"},
		v3Factory:         {target: address, abi: v3PoolABI, method: "factory"},
		v3GlobalState:     {target: address, abi: algebraPoolABI, method: "globalState"},
		v3ActiveIncentive: {target: address, abi: algebraPoolABI, method: "activeIncentive"},
	}
	replies, err := f.batch(ctx, block, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch v3 pool %s: %w", address.Hex(), err)
	}

	token0, ok0 := replyAddress(replies[v3Token0])
	token1, ok1 := replyAddress(replies[v3Token1])
	spacingBig, okSpacing := replyBig(replies[v3TickSpacing])
	liquidity, okLiquidity := replyBig(replies[v3Liquidity])
	if !ok0 || !ok1 || !okSpacing || !okLiquidity {
		return nil, fmt.Errorf("%w: v3 pool %s is missing token, spacing or liquidity accessors", model.ErrDiscoveryExhausted, address.Hex())
	}
	if !spacingBig.IsInt64() || spacingBig.Int64() <= 0 || spacingBig.Int64() > 1<<23 {
		return nil, fmt.Errorf("%w: v3 pool %s tick spacing %s", model.ErrDiscoveryExhausted, address.Hex(), spacingBig)
	}
	spacing := int32(spacingBig.Int64())
	factory, _ := replyAddress(replies[v3Factory])

	shape, ok := f.matchV3Shape(replies, factory)
	if !ok {
		return nil, fmt.Errorf("%w: v3 pool %s price state matches no known shape", model.ErrDiscoveryExhausted, address.Hex())
	}
	f.metrics.Fallback("price_state", string(shape.subType))

	metas, err := f.tokens.Lookup(ctx, block, token0, token1)
	if err != nil {
		return nil, err
	}

	p := pool.NewV3Pool(pool.V3Params{
		Address:      address,
		Token0:       token0,
		Token1:       token1,
		Factory:      factory,
		Decimals0:    metas[0].Decimals,
		Decimals1:    metas[1].Decimals,
		Fee:          shape.fee,
		TickSpacing:  spacing,
		SqrtPriceX96: shape.sqrtPriceX96,
		Tick:         shape.tick,
		Liquidity:    liquidity,
		SubType:      shape.subType,
	})
	if err := p.State().Validate(); err != nil {
		return nil, fmt.Errorf("v3 pool %s: %w", address.Hex(), err)
	}

	ticks, err := f.FetchTicks(ctx, block, address, shape.subType, spacing)
	if err != nil {
		return nil, fmt.Errorf("fetch ticks of %s: %w", address.Hex(), err)
	}
	p.SetTicks(ticks)

	if shape.subType == pool.SubTypeRamsesV2 {
		factor := f.CalibrateRamses(ctx, block, p)
		p.SetRatioConversionFactor(factor)
		f.logger.Info("ratio conversion factor", zap.String("pool", address.Hex()), zap.String("factor", factor.String()))
	}

	f.logger.Info("v3 pool discovered",
		zap.String("pool", address.Hex()),
		zap.String("sub_type", string(shape.subType)),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint64("fee", shape.fee),
		zap.String("factory", factory.Hex()),
		zap.Int32("tick", shape.tick),
		zap.String("liquidity", liquidity.String()),
		zap.Int("ticks", len(ticks)),
	)
	return p, nil
}

// matchV3Shape tries the price-state candidates in priority order. slot0() and globalState()
// are shared selectors, so candidates are told apart by the exact return length.
func (f *Fetcher) matchV3Shape(replies []reply, factory common.Address) (v3Shape, bool) {
	slot0 := replies[v3Slot0]
	global := replies[v3GlobalState]
	poolFee, okFee := replyBig(replies[v3Fee])

	if slot0.ok && len(slot0.data) == 6*wordSize && okFee {
		if s, ok := decodePriceState(slot0.data, slot0CompactShape); ok {
			s.subType = pool.SubTypeUniswapV3
			s.fee = poolFee.Uint64()
			return s, true
		}
	}
	f.logger.Debug("compact slot0 unavailable")

	if global.ok && len(global.data) == 7*wordSize {
		if s, ok := decodePriceState(global.data, feeInStateShape); ok {
			s.subType = pool.SubTypeAlgebraFeeInState
			s.fee = wordUint64(global.data, 2)
			return s, true
		}
	}
	f.logger.Debug("fee-in-state globalState unavailable")

	if global.ok && len(global.data) == 8*wordSize && replies[v3ActiveIncentive].ok {
		if s, ok := decodePriceState(global.data, twoSideFeeShape); ok {
			s.subType = pool.SubTypeAlgebraTwoSideFee
			feeZto, feeOtz := wordUint64(global.data, 2), wordUint64(global.data, 3)
			s.fee = feeZto
			if feeOtz > feeZto {
				s.fee = feeOtz
			}
			return s, true
		}
	}
	f.logger.Debug("two-side-fee globalState unavailable")

	if global.ok && len(global.data) == 6*wordSize && okFee {
		if s, ok := decodePriceState(global.data, globalStateShape); ok {
			s.subType = pool.SubTypeAlgebraV3
			s.fee = poolFee.Uint64()
			return s, true
		}
	}
	f.logger.Debug("algebra globalState unavailable")

	if slot0.ok && len(slot0.data) == 7*wordSize && okFee {
		if s, ok := decodePriceState(slot0.data, slot0StandardShape); ok {
			s.subType = pool.SubTypeUniswapV3
			if _, ramses := f.opts.RamsesQuoters[factory]; ramses {
				s.subType = pool.SubTypeRamsesV2
			}
			s.fee = poolFee.Uint64()
			return s, true
		}
	}
	return v3Shape{}, false
}

// decodePriceState reads (sqrtPrice, tick) from the first two words of a full shape.
func decodePriceState(data []byte, shape abi.Arguments) (v3Shape, bool) {
	values, err := shape.Unpack(data)
	if err != nil || len(values) < 2 {
		return v3Shape{}, false
	}
	sqrt, err := toBig(values[0])
	if err != nil || sqrt.Sign() == 0 {
		return v3Shape{}, false
	}
	tickBig, err := toBig(values[1])
	if err != nil || !tickBig.IsInt64() {
		return v3Shape{}, false
	}
	return v3Shape{sqrtPriceX96: sqrt, tick: int32(tickBig.Int64())}, true
}

func wordUint64(data []byte, index int) uint64 {
	return new(big.Int).SetBytes(data[index*wordSize : (index+1)*wordSize]).Uint64()
}
