package pool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"ammstate/internal/clmm"
	"ammstate/internal/clmm/tickmath"
	"ammstate/internal/curve"
	"ammstate/internal/model"
)

// RatioScale is the fixed-point scale of a Ramses ratio conversion factor.
var RatioScale = big.NewInt(10_000_000_000)

// V3Params describes a concentrated-liquidity pool as discovered on chain.
type V3Params struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Factory      common.Address
	Decimals0    uint8
	Decimals1    uint8
	Fee          uint64
	TickSpacing  int32
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	Ticks        []clmm.Tick
	SubType      SubType
}

// V3Pool is a concentrated-liquidity pool.
type V3Pool struct {
	address common.Address
	token0  common.Address
	token1  common.Address
	factory common.Address
	subType SubType
	scale0  *big.Int
	scale1  *big.Int

	mu          sync.RWMutex
	state       clmm.State
	ratioFactor *big.Int
	updatedAt   time.Time
}

func NewV3Pool(p V3Params) *V3Pool {
	subType := p.SubType
	if subType == "" {
		subType = SubTypeUniswapV3
	}
	return &V3Pool{
		address: p.Address,
		token0:  p.Token0,
		token1:  p.Token1,
		factory: p.Factory,
		subType: subType,
		scale0:  curve.Scale(p.Decimals0),
		scale1:  curve.Scale(p.Decimals1),
		state: clmm.State{
			SqrtPriceX96: copyBig(p.SqrtPriceX96),
			Tick:         p.Tick,
			Liquidity:    copyBig(p.Liquidity),
			TickSpacing:  p.TickSpacing,
			Fee:          p.Fee,
			Ticks:        clmm.NewTickMap(p.Ticks...),
		},
		ratioFactor: new(big.Int).Set(RatioScale),
		updatedAt:   time.Now(),
	}
}

func (p *V3Pool) Address() common.Address                 { return p.address }
func (p *V3Pool) Tokens() (common.Address, common.Address) { return p.token0, p.token1 }
func (p *V3Pool) Kind() Kind                              { return KindV3 }
func (p *V3Pool) SubType() SubType                        { return p.subType }
func (p *V3Pool) Factory() common.Address                 { return p.factory }

func (p *V3Pool) Fee() decimal.Decimal { return feeRatio(p.FeeRaw()) }

func (p *V3Pool) FeeRaw() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Fee
}

func (p *V3Pool) ContainsToken(token common.Address) bool {
	return token == p.token0 || token == p.token1
}

func (p *V3Pool) ID() string {
	return fmt.Sprintf("v3-%s-%s-%s-%d", p.address.Hex(), p.token0.Hex(), p.token1.Hex(), p.FeeRaw())
}

func (p *V3Pool) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// State returns a copy of the swap state; the tick map is cloned.
func (p *V3Pool) State() clmm.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateLocked()
}

func (p *V3Pool) stateLocked() clmm.State {
	s := p.state
	s.SqrtPriceX96 = copyBig(s.SqrtPriceX96)
	s.Liquidity = copyBig(s.Liquidity)
	s.Ticks = s.Ticks.Clone()
	return s
}

// SetTicks replaces the initialized tick set.
func (p *V3Pool) SetTicks(ticks []clmm.Tick) {
	p.mu.Lock()
	p.state.Ticks = clmm.NewTickMap(ticks...)
	p.updatedAt = time.Now()
	p.mu.Unlock()
}

// SetRatioConversionFactor sets the Ramses output scaling, in units of RatioScale.
func (p *V3Pool) SetRatioConversionFactor(factor *big.Int) {
	p.mu.Lock()
	p.ratioFactor = copyBig(factor)
	p.mu.Unlock()
}

func (p *V3Pool) RatioConversionFactor() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyBig(p.ratioFactor)
}

// CalculateOutput simulates an exact-input swap. Ramses pools scale the result by their
// ratio conversion factor.
func (p *V3Pool) CalculateOutput(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	var zeroForOne bool
	switch tokenIn {
	case p.token0:
		zeroForOne = true
	case p.token1:
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrTokenMismatch, tokenIn.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, model.ErrZeroAmount
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	res, err := clmm.Swap(p.state, zeroForOne, amountIn, nil)
	if err != nil {
		return nil, err
	}
	out := res.AmountCalculated
	if p.subType == SubTypeRamsesV2 {
		out = new(big.Int).Mul(out, p.ratioFactor)
		out.Quo(out, RatioScale)
	}
	return out, nil
}

// CalculateInput simulates an exact-output swap and returns the input including fee.
func (p *V3Pool) CalculateInput(tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	var zeroForOne bool
	switch tokenOut {
	case p.token0:
	case p.token1:
		zeroForOne = true
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrTokenMismatch, tokenOut.Hex())
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, model.ErrZeroAmount
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	res, err := clmm.Swap(p.state, zeroForOne, new(big.Int).Neg(amountOut), nil)
	if err != nil {
		return nil, err
	}
	return res.AmountCalculated, nil
}

// ApplySwap only validates the token and touches the timestamp: the authoritative price
// comes from the Swap event.
func (p *V3Pool) ApplySwap(tokenIn common.Address, amountIn, amountOut *big.Int) error {
	if err := validSwapAmounts(amountIn, amountOut); err != nil {
		return err
	}
	if !p.ContainsToken(tokenIn) {
		return fmt.Errorf("%w: %s", model.ErrTokenMismatch, tokenIn.Hex())
	}
	p.mu.Lock()
	p.updatedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// UpdateState overwrites price, tick and active liquidity.
func (p *V3Pool) UpdateState(sqrtPriceX96 *big.Int, tick int32, liquidity *big.Int) error {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return fmt.Errorf("%w: sqrt price is zero", model.ErrMathDomain)
	}
	if tick < tickmath.MinTick || tick > tickmath.MaxTick {
		return fmt.Errorf("%w: %d", tickmath.ErrTickOutOfBounds, tick)
	}
	p.mu.Lock()
	p.state.SqrtPriceX96 = copyBig(sqrtPriceX96)
	p.state.Tick = tick
	p.state.Liquidity = copyBig(liquidity)
	p.updatedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SetFee updates a dynamic fee read back from the pool.
func (p *V3Pool) SetFee(fee uint64) {
	p.mu.Lock()
	p.state.Fee = fee
	p.mu.Unlock()
}

func (p *V3Pool) ApplyLog(log types.Log) error {
	topic, ok := topic0(log)
	if !ok {
		return nil
	}
	switch topic {
	case TopicV3Swap:
		return p.applySwapLog(V3PoolEvents, log)
	case TopicPancakeSwap:
		return p.applySwapLog(PancakeV3Events, log)
	case TopicAlgebraSwap:
		return p.applySwapLog(AlgebraEvents, log)
	case TopicV3Mint:
		// Mint data is (sender, amount, amount0, amount1).
		return p.applyPositionLog(V3PoolEvents, "Mint", 1, log)
	case TopicV3Burn:
		return p.applyPositionLog(V3PoolEvents, "Burn", 0, log)
	case TopicAlgebraBurn:
		return p.applyPositionLog(AlgebraEvents, "Burn", 0, log)
	default:
		return nil
	}
}

// applySwapLog reads (amount0, amount1, sqrtPrice, liquidity, tick), shared by every fork.
func (p *V3Pool) applySwapLog(get func() (abi.ABI, error), log types.Log) error {
	parsed, err := get()
	if err != nil {
		return err
	}
	_, values, err := decodeLog(parsed.Events["Swap"], log)
	if err != nil {
		return err
	}
	fields, err := bigValues(values, 5)
	if err != nil {
		return err
	}
	tick, err := int24FromBig(fields[4])
	if err != nil {
		return err
	}
	return p.UpdateState(fields[2], tick, fields[3])
}

func (p *V3Pool) applyPositionLog(get func() (abi.ABI, error), name string, amountIdx int, log types.Log) error {
	parsed, err := get()
	if err != nil {
		return err
	}
	rng, values, err := parseTickRange(parsed.Events[name], log)
	if err != nil {
		return err
	}
	if len(values) <= amountIdx {
		return fmt.Errorf("%w: %s has %d data values", model.ErrDecode, name, len(values))
	}
	amount, err := asBigInt(values[amountIdx])
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if name == "Mint" {
		err = p.state.Mint(rng.Lower, rng.Upper, amount)
	} else {
		err = p.state.Burn(rng.Lower, rng.Upper, amount)
	}
	if err != nil {
		return err
	}
	p.updatedAt = time.Now()
	return nil
}

func (p *V3Pool) LogSummary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("V3 Pool %s - %s <> %s (fee: %s%%, tick: %d, liquidity: %s, sqrt_price_x96: %s, ticks: %d)",
		p.address.Hex(), p.token0.Hex(), p.token1.Hex(), feePercent(p.state.Fee),
		p.state.Tick, bigString(p.state.Liquidity), bigString(p.state.SqrtPriceX96), p.state.Ticks.Len())
}

func (p *V3Pool) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ticks := make([]model.TickSnapshot, 0, p.state.Ticks.Len())
	for _, t := range p.state.Ticks.Ticks() {
		ticks = append(ticks, model.TickSnapshot{
			Index:          t.Index,
			LiquidityNet:   t.LiquidityNet.String(),
			LiquidityGross: t.LiquidityGross.String(),
		})
	}
	return model.PoolSnapshot{
		ID:                    fmt.Sprintf("v3-%s-%s-%s-%d", p.address.Hex(), p.token0.Hex(), p.token1.Hex(), p.state.Fee),
		Kind:                  string(KindV3),
		SubType:               string(p.subType),
		Address:               p.address.Hex(),
		Token0:                p.token0.Hex(),
		Token1:                p.token1.Hex(),
		Fee:                   p.state.Fee,
		Decimals0:             p.scale0.String(),
		Decimals1:             p.scale1.String(),
		TickSpacing:           p.state.TickSpacing,
		SqrtPriceX96:          bigString(p.state.SqrtPriceX96),
		Tick:                  p.state.Tick,
		Liquidity:             bigString(p.state.Liquidity),
		Factory:               p.factory.Hex(),
		RatioConversionFactor: bigString(p.ratioFactor),
		Ticks:                 ticks,
		UpdatedAt:             p.updatedAt,
	}
}
