// Package swapmath computes a single swap step inside one tick range.
package swapmath

import (
	"math/big"

	"ammstate/internal/clmm/sqrtpricemath"
)

// FeeDenominator is the pips denominator of a pool fee.
const FeeDenominator = 1_000_000

var feeDenominator = big.NewInt(FeeDenominator)

// Step is the outcome of ComputeSwapStep.
type Step struct {
	SqrtRatioNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeSwapStep swaps within [current, target]. A non-negative amountRemaining is an
// exact input, a negative one an exact output. The direction follows from the two prices.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int, feePips uint64) (Step, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := new(big.Int).SetUint64(feePips)
	feeComplement := new(big.Int).Sub(feeDenominator, fee)

	var (
		step Step
		err  error
	)
	amountRemainingAbs := new(big.Int).Abs(amountRemaining)

	if exactIn {
		lessFee := sqrtpricemath.MulDiv(amountRemaining, feeComplement, feeDenominator)
		if zeroForOne {
			step.AmountIn, err = sqrtpricemath.Amount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return Step{}, err
			}
		} else {
			step.AmountIn = sqrtpricemath.Amount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if lessFee.Cmp(step.AmountIn) >= 0 {
			step.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = sqrtpricemath.NextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, lessFee, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	} else {
		if zeroForOne {
			step.AmountOut = sqrtpricemath.Amount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.AmountOut, err = sqrtpricemath.Amount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
			if err != nil {
				return Step{}, err
			}
		}
		if amountRemainingAbs.Cmp(step.AmountOut) >= 0 {
			step.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = sqrtpricemath.NextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	}

	reachedTarget := sqrtRatioTargetX96.Cmp(step.SqrtRatioNextX96) == 0

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.AmountIn, err = sqrtpricemath.Amount0Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return Step{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut = sqrtpricemath.Amount1Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.AmountIn = sqrtpricemath.Amount1Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut, err = sqrtpricemath.Amount0Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, false)
			if err != nil {
				return Step{}, err
			}
		}
	}

	// exact-out never returns more than was asked for
	if !exactIn && step.AmountOut.Cmp(amountRemainingAbs) > 0 {
		step.AmountOut = new(big.Int).Set(amountRemainingAbs)
	}

	if exactIn && !reachedTarget {
		// the remainder of the input is taken as fee
		step.FeeAmount = new(big.Int).Sub(amountRemaining, step.AmountIn)
	} else {
		step.FeeAmount = sqrtpricemath.MulDivRoundingUp(step.AmountIn, fee, feeComplement)
	}
	return step, nil
}
