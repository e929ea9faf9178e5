package clmm

import (
	"fmt"
	"math/big"

	"ammstate/internal/clmm/liquiditymath"
	"ammstate/internal/clmm/swapmath"
	"ammstate/internal/clmm/tickmath"
	"ammstate/internal/model"
)

var (
	// MinSqrtPriceLimit and MaxSqrtPriceLimit are the default price limits of a swap.
	MinSqrtPriceLimit = new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1))
	MaxSqrtPriceLimit = new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
)

// State is the swap-relevant state of a concentrated-liquidity pool.
type State struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	TickSpacing  int32
	Fee          uint64
	Ticks        *TickMap
}

// Validate checks the price and tick invariants.
func (s State) Validate() error {
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() == 0 {
		return fmt.Errorf("%w: sqrt price is zero", model.ErrMathDomain)
	}
	if s.Tick < tickmath.MinTick || s.Tick > tickmath.MaxTick {
		return fmt.Errorf("%w: %d", tickmath.ErrTickOutOfBounds, s.Tick)
	}
	if s.Liquidity == nil || s.Liquidity.Sign() < 0 {
		return fmt.Errorf("%w: invalid liquidity", model.ErrMathDomain)
	}
	if s.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", model.ErrMathDomain, s.TickSpacing)
	}
	if s.Fee >= swapmath.FeeDenominator {
		return fmt.Errorf("%w: fee %d out of range", model.ErrMathDomain, s.Fee)
	}
	return nil
}

// SwapResult is the outcome of Swap. AmountCalculated is the output of an exact-input
// swap or the input (fee included) of an exact-output swap.
type SwapResult struct {
	AmountCalculated *big.Int
	SqrtPriceX96     *big.Int
	Tick             int32
	Liquidity        *big.Int
}

// Swap simulates a swap against s without modifying it. A positive amountSpecified is an
// exact input, a negative one an exact output. A nil sqrtPriceLimitX96 means no limit.
func Swap(s State, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *big.Int) (SwapResult, error) {
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return SwapResult{}, model.ErrZeroAmount
	}
	if err := s.Validate(); err != nil {
		return SwapResult{}, err
	}
	if s.Liquidity.Sign() == 0 && s.Ticks.Len() == 0 {
		return SwapResult{}, fmt.Errorf("%w: pool has no liquidity", model.ErrMathDomain)
	}
	if sqrtPriceLimitX96 == nil {
		if zeroForOne {
			sqrtPriceLimitX96 = MinSqrtPriceLimit
		} else {
			sqrtPriceLimitX96 = MaxSqrtPriceLimit
		}
	}
	if zeroForOne && sqrtPriceLimitX96.Cmp(s.SqrtPriceX96) >= 0 ||
		!zeroForOne && sqrtPriceLimitX96.Cmp(s.SqrtPriceX96) <= 0 {
		return SwapResult{}, fmt.Errorf("%w: price limit on the wrong side of the current price", model.ErrMathDomain)
	}

	exactIn := amountSpecified.Sign() > 0
	remaining := new(big.Int).Set(amountSpecified)
	calculated := new(big.Int)
	price := new(big.Int).Set(s.SqrtPriceX96)
	liquidity := new(big.Int).Set(s.Liquidity)
	tick := s.Tick

	for remaining.Sign() != 0 && price.Cmp(sqrtPriceLimitX96) != 0 {
		start := new(big.Int).Set(price)

		tickNext, initialized, ok := s.Ticks.NextInitializedTickWithinOneWord(tick, s.TickSpacing, zeroForOne)
		if !ok {
			// nothing left in this direction, run to the end of the price range
			if zeroForOne {
				tickNext = tickmath.MinTick
			} else {
				tickNext = tickmath.MaxTick
			}
		}
		if tickNext < tickmath.MinTick {
			tickNext = tickmath.MinTick
		} else if tickNext > tickmath.MaxTick {
			tickNext = tickmath.MaxTick
		}

		priceNext, err := tickmath.SqrtRatioAtTick(tickNext)
		if err != nil {
			return SwapResult{}, err
		}
		target := priceNext
		if zeroForOne && priceNext.Cmp(sqrtPriceLimitX96) < 0 || !zeroForOne && priceNext.Cmp(sqrtPriceLimitX96) > 0 {
			target = sqrtPriceLimitX96
		}

		step, err := swapmath.ComputeSwapStep(price, target, liquidity, remaining, s.Fee)
		if err != nil {
			return SwapResult{}, err
		}
		price.Set(step.SqrtRatioNextX96)

		spent := new(big.Int).Add(step.AmountIn, step.FeeAmount)
		if exactIn {
			remaining.Sub(remaining, spent)
			calculated.Add(calculated, step.AmountOut)
		} else {
			remaining.Add(remaining, step.AmountOut)
			calculated.Add(calculated, spent)
		}

		if price.Cmp(priceNext) == 0 {
			if initialized {
				crossed, _ := s.Ticks.Get(tickNext)
				net := new(big.Int).Set(crossed.LiquidityNet)
				if zeroForOne {
					net.Neg(net)
				}
				liquidity, err = liquiditymath.AddDelta(liquidity, net)
				if err != nil {
					return SwapResult{}, fmt.Errorf("cross tick %d: %w", tickNext, err)
				}
			}
			if zeroForOne {
				tick = tickNext - 1
			} else {
				tick = tickNext
			}
		} else if price.Cmp(start) != 0 {
			tick, err = tickmath.TickAtSqrtRatio(price)
			if err != nil {
				return SwapResult{}, err
			}
		}
	}

	if remaining.Sign() != 0 {
		return SwapResult{}, fmt.Errorf("%w: %s left unfilled", model.ErrInsufficientLiquidity, new(big.Int).Abs(remaining))
	}
	return SwapResult{
		AmountCalculated: calculated,
		SqrtPriceX96:     price,
		Tick:             tick,
		Liquidity:        liquidity,
	}, nil
}
