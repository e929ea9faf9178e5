package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/model"
	"ammstate/internal/pool"
)

const (
	// factoryStorageSlot holds the factory address of pairs without a factory() getter.
	factoryStorageSlot = 0xb
	// Fee getters answer in basis points; raw fees are parts per million.
	getFeeMultiplier = 100
	getFeeMax        = 10_000
	// Pair fee() values above reverseFeeMax are stored as 10000-fee.
	reverseFeeMax = 5_000
	// fallbackFee ends the chain when neither the chain nor the factory has a default.
	fallbackFee = 3_000
)

// legacyFactoryFees covers well-known factories whose pairs expose no fee getter.
var legacyFactoryFees = map[common.Address]uint64{
	common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"): 3000, // Uniswap V2
	common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"): 3000, // SushiSwap
	common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"): 2500, // PancakeSwap V2
	common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"): 3000, // QuickSwap
}

const (
	v2Token0 = iota
	v2Token1
	v2Reserves
	v2Factory
	v2PairFee
	v2Stable
	v2GetFee
	v2IsStable
	v2SwapFee
)

// FetchV2 builds a V2 pool. The reserves must decode as the uint112 or the uint256 pair
// shape; every fee source is best effort down to the configured default.
func (f *Fetcher) FetchV2(ctx context.Context, address common.Address, block *big.Int) (*pool.V2Pool, error) {
	calls := []call{
		v2Token0:   {target: address, abi: v2PairABI, method: "token0"},
		v2Token1:   {target: address, abi: v2PairABI, method: "token1"},
		v2Reserves: {target: address, abi: v2PairABI, method: "getReserves"},
		v2Factory:  {target: address, abi: v2PairABI, method: "factory"},
		v2PairFee:  {target: address, abi: v2PairABI, method: "fee"},
		v2Stable:   {target: address, abi: v2PairABI, method: "stable"},
		v2GetFee:   {target: address, abi: v2PairABI, method: "getFee"},
		v2IsStable: {target: address, abi: v2PairABI, method: "isStable"},
		v2SwapFee:  {target: address, abi: v2PairABI, method: "swapFee"},
	}
	replies, err := f.batch(ctx, block, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch v2 pool %s: %w", address.Hex(), err)
	}

	token0, ok0 := replyAddress(replies[v2Token0])
	token1, ok1 := replyAddress(replies[v2Token1])
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("%w: v2 pool %s has no token accessors", model.ErrDiscoveryExhausted, address.Hex())
	}

	reserve0, reserve1, shape, ok := decodeReserves(replies[v2Reserves])
	if !ok {
		return nil, fmt.Errorf("%w: v2 pool %s reserves match no known shape", model.ErrDiscoveryExhausted, address.Hex())
	}
	f.metrics.Fallback("reserves", shape)

	stable := false
	if v, ok := replyBool(replies[v2Stable]); ok {
		stable = v
	} else if v, ok := replyBool(replies[v2IsStable]); ok {
		stable = v
	}

	factory, _ := replyAddress(replies[v2Factory])
	fee, factory, step := f.resolveV2Fee(ctx, block, address, token0, token1, factory, stable, replies)
	f.metrics.Fallback("fee", step)

	metas, err := f.tokens.Lookup(ctx, block, token0, token1)
	if err != nil {
		return nil, err
	}

	subType := pool.SubTypeUniswapV2
	if stable {
		subType = pool.SubTypeStable
	}
	p := pool.NewV2Pool(pool.V2Params{
		Address:   address,
		Token0:    token0,
		Token1:    token1,
		Factory:   factory,
		Decimals0: metas[0].Decimals,
		Decimals1: metas[1].Decimals,
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		Fee:       fee,
		SubType:   subType,
	})
	f.logger.Info("v2 pool discovered",
		zap.String("pool", address.Hex()),
		zap.String("sub_type", string(subType)),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint64("fee", fee),
		zap.String("fee_source", step),
		zap.String("factory", factory.Hex()),
	)
	return p, nil
}

// decodeReserves tries the uint112 pair shape, then the uint256 one. The two share a
// selector, so a uint112 decode is only accepted when both values fit 112 bits.
func decodeReserves(r reply) (*big.Int, *big.Int, string, bool) {
	if !r.ok {
		return nil, nil, "", false
	}
	if len(r.values) >= 2 {
		r0, err0 := toBig(r.values[0])
		r1, err1 := toBig(r.values[1])
		if err0 == nil && err1 == nil && r0.BitLen() <= 112 && r1.BitLen() <= 112 {
			return r0, r1, "uint112", true
		}
	}
	values, err := wideReservesShape.Unpack(r.data)
	if err != nil || len(values) < 2 {
		return nil, nil, "", false
	}
	r0, err0 := toBig(values[0])
	r1, err1 := toBig(values[1])
	if err0 != nil || err1 != nil {
		return nil, nil, "", false
	}
	return r0, r1, "uint256", true
}

// resolveV2Fee walks the fee sources in priority order and reports which one answered.
// The factory may be resolved along the way and is returned with the fee.
func (f *Fetcher) resolveV2Fee(
	ctx context.Context,
	block *big.Int,
	address, token0, token1, factory common.Address,
	stable bool,
	replies []reply,
) (uint64, common.Address, string) {
	log := f.logger.With(zap.String("pool", address.Hex()))

	if v, ok := replyBig(replies[v2PairFee]); ok && v.Cmp(big.NewInt(getFeeMax)) <= 0 {
		if v.Cmp(big.NewInt(reverseFeeMax)) > 0 {
			v.Sub(big.NewInt(getFeeMax), v)
		}
		if fee, ok := scaleGetterFee(v); ok {
			return fee, factory, "pair_fee"
		}
	}
	log.Debug("pair fee() unavailable")
	if v, ok := replyBig(replies[v2GetFee]); ok {
		if fee, ok := scaleGetterFee(v); ok {
			return fee, factory, "pair_get_fee"
		}
	}
	log.Debug("pair getFee() unavailable")
	if v, ok := replyBig(replies[v2SwapFee]); ok {
		if fee, ok := scaleGetterFee(v); ok {
			return fee, factory, "pair_swap_fee"
		}
	}
	log.Debug("pair swapFee() unavailable")

	if factory == (common.Address{}) {
		factory = f.factoryFromStorage(ctx, address, block)
		log.Info("pool factory from storage", zap.String("factory", factory.Hex()))
	}

	if fee, ok := f.factoryFees()[factory]; ok {
		return fee, factory, "factory_map"
	}
	if fee, ok := legacyFactoryFees[factory]; ok {
		return fee, factory, "legacy_table"
	}
	if factory != (common.Address{}) {
		if fee, ok := f.factoryFee(ctx, block, factory, address, stable); ok {
			return fee, factory, "factory_getter"
		}
		log.Debug("factory fee getters unavailable", zap.String("factory", factory.Hex()))
	}

	if aero, fee, ok := f.aeroFactoryFee(ctx, block, address, token0, token1, stable); ok {
		log.Info("found aero factory", zap.String("factory", aero.Hex()))
		return fee, aero, "aero_factory"
	}

	log.Info("no aero factory matched, using default factory fee")
	return f.defaultFee(factory), factory, "default"
}

func scaleGetterFee(v *big.Int) (uint64, bool) {
	fee := new(big.Int).Mul(v, big.NewInt(getFeeMultiplier))
	if !fee.IsUint64() || fee.Uint64() >= pool.FeeDenominator {
		return 0, false
	}
	return fee.Uint64(), true
}

func (f *Fetcher) factoryFromStorage(ctx context.Context, address common.Address, block *big.Int) common.Address {
	raw, err := f.reader.StorageAt(ctx, address, common.BigToHash(big.NewInt(factoryStorageSlot)), block)
	if err != nil {
		f.logger.Debug("read factory storage slot", zap.String("pool", address.Hex()), zap.Error(err))
		return common.Address{}
	}
	return common.BytesToAddress(raw)
}

// factoryFee tries getFee(pool, stable), getFee(stable) and getFee(pool) on factory.
func (f *Fetcher) factoryFee(ctx context.Context, block *big.Int, factory, address common.Address, stable bool) (uint64, bool) {
	replies, err := f.batch(ctx, block, []call{
		{target: factory, abi: factoryFeePoolStableABI, method: "getFee", args: []interface{}{address, stable}},
		{target: factory, abi: factoryFeeStableABI, method: "getFee", args: []interface{}{stable}},
		{target: factory, abi: factoryFeePoolABI, method: "getFee", args: []interface{}{address}},
	})
	if err != nil {
		f.logger.Debug("factory fee batch failed", zap.String("factory", factory.Hex()), zap.Error(err))
		return 0, false
	}
	for _, r := range replies {
		if v, ok := replyBig(r); ok {
			if fee, ok := scaleGetterFee(v); ok {
				return fee, true
			}
		}
	}
	return 0, false
}

// aeroFactoryFee asks every configured Aero-style factory for the pair of the two tokens
// and uses the fee getters of the first factory that returns this pool.
func (f *Fetcher) aeroFactoryFee(ctx context.Context, block *big.Int, address, token0, token1 common.Address, stable bool) (common.Address, uint64, bool) {
	factories := f.aeroFactories()
	if len(factories) == 0 {
		return common.Address{}, 0, false
	}
	calls := make([]call, len(factories))
	for i, factory := range factories {
		calls[i] = call{target: factory, abi: aeroFactoryABI, method: "getPair", args: []interface{}{token0, token1, stable}}
	}
	replies, err := f.batch(ctx, block, calls)
	if err != nil {
		f.logger.Debug("aero getPair batch failed", zap.Error(err))
		return common.Address{}, 0, false
	}
	for i, r := range replies {
		pair, ok := replyAddress(r)
		if !ok || pair != address {
			continue
		}
		if fee, ok := f.factoryFee(ctx, block, factories[i], address, stable); ok {
			return factories[i], fee, true
		}
	}
	return common.Address{}, 0, false
}

func (f *Fetcher) defaultFee(factory common.Address) uint64 {
	if fee, ok := f.opts.FactoryDefaultFees[factory]; ok {
		return fee
	}
	if f.opts.DefaultFee > 0 {
		return f.opts.DefaultFee
	}
	return fallbackFee
}
