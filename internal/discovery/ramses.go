package discovery

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/pool"
)

// calibrationAmount is quoted in both directions when calibrating a Ramses pool.
var calibrationAmount = big.NewInt(100_000_000_000)

// CalibrateRamses compares the local quote of p with the factory's on-chain quoter and
// returns the ratio conversion factor in units of pool.RatioScale. Each direction gives
// quoted*scale/estimate-1; the smaller wins. Any failure yields the neutral factor.
func (f *Fetcher) CalibrateRamses(ctx context.Context, block *big.Int, p *pool.V3Pool) *big.Int {
	neutral := new(big.Int).Set(pool.RatioScale)
	quoter, ok := f.opts.RamsesQuoters[p.Factory()]
	if !ok {
		return neutral
	}

	token0, token1 := p.Tokens()
	f0, finite0 := f.directionFactor(ctx, block, p, quoter, token0, token1)
	f1, finite1 := f.directionFactor(ctx, block, p, quoter, token1, token0)
	switch {
	case !finite0 && !finite1:
		return neutral
	case !finite0:
		return f1
	case !finite1:
		return f0
	case f0.Cmp(f1) <= 0:
		return f0
	default:
		return f1
	}
}

// directionFactor returns false when the local estimate is zero, which ranks the direction
// as infinitely large.
func (f *Fetcher) directionFactor(ctx context.Context, block *big.Int, p *pool.V3Pool, quoter, tokenIn, tokenOut common.Address) (*big.Int, bool) {
	log := f.logger.With(zap.String("pool", p.Address().Hex()), zap.String("token_in", tokenIn.Hex()))
	neutral := new(big.Int).Set(pool.RatioScale)

	quoted, err := f.quote(ctx, block, quoter, tokenIn, tokenOut, p.FeeRaw())
	if err != nil {
		log.Info("failed to fetch ratio conversion factor", zap.Error(err))
		return neutral, true
	}
	estimate, err := p.CalculateOutput(tokenIn, calibrationAmount)
	if err != nil {
		log.Info("local estimate failed, using neutral factor", zap.Error(err))
		return neutral, true
	}
	if estimate.Sign() == 0 {
		return nil, false
	}
	if quoted.Cmp(estimate) == 0 {
		return neutral, true
	}
	factor := new(big.Int).Mul(quoted, pool.RatioScale)
	factor.Quo(factor, estimate)
	factor.Sub(factor, big.NewInt(1))
	if factor.Sign() < 0 {
		factor.SetInt64(0)
	}
	return factor, true
}

func (f *Fetcher) quote(ctx context.Context, block *big.Int, quoter, tokenIn, tokenOut common.Address, fee uint64) (*big.Int, error) {
	parsed, err := quoterABI.get()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack("quoteExactInputSingle", tokenIn, tokenOut, new(big.Int).SetUint64(fee), calibrationAmount, new(big.Int))
	if err != nil {
		return nil, err
	}
	raw, err := f.reader.CallContract(ctx, ethereum.CallMsg{To: &quoter, Data: data}, block)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, err
	}
	return toBig(values[0])
}
