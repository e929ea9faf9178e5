// Package sqrtpricemath computes price movements and token deltas over a liquidity range.
package sqrtpricemath

import (
	"fmt"
	"math/big"

	"ammstate/internal/model"
)

const resolution = 96

var (
	// Q96 is 2^96, the fixed-point one of a Q64.96 price.
	Q96 = new(big.Int).Lsh(big.NewInt(1), resolution)

	ErrLiquidityZero = fmt.Errorf("%w: liquidity must be greater than zero", model.ErrMathDomain)
	ErrSqrtPriceZero = fmt.Errorf("%w: sqrt price must be greater than zero", model.ErrMathDomain)
	ErrPriceOverflow = fmt.Errorf("%w: price out of range", model.ErrMathDomain)

	one = big.NewInt(1)
)

func fitsUint256(x *big.Int) bool {
	return x.Sign() >= 0 && x.BitLen() <= 256
}

func fitsUint160(x *big.Int) bool {
	return x.Sign() >= 0 && x.BitLen() <= 160
}

// MulDiv returns floor(a*b/c).
func MulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, c)
}

// MulDivRoundingUp returns ceil(a*b/c).
func MulDivRoundingUp(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

func divRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

// NextSqrtPriceFromAmount0RoundingUp moves the price by a token0 amount, rounding up.
func NextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, resolution)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		if fitsUint256(product) {
			denominator := new(big.Int).Add(numerator1, product)
			if fitsUint256(denominator) {
				return MulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
			}
		}
		// numerator1 / (numerator1/sqrtP + amount)
		denominator := new(big.Int).Quo(numerator1, sqrtPX96)
		denominator.Add(denominator, amount)
		return divRoundingUp(numerator1, denominator), nil
	}

	if !fitsUint256(product) || numerator1.Cmp(product) <= 0 {
		return nil, fmt.Errorf("%w: token0 output exceeds virtual reserve", ErrPriceOverflow)
	}
	denominator := new(big.Int).Sub(numerator1, product)
	next := MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if !fitsUint160(next) {
		return nil, ErrPriceOverflow
	}
	return next, nil
}

// NextSqrtPriceFromAmount1RoundingDown moves the price by a token1 amount, rounding down.
func NextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := MulDiv(amount, Q96, liquidity)
		next := quotient.Add(quotient, sqrtPX96)
		if !fitsUint160(next) {
			return nil, ErrPriceOverflow
		}
		return next, nil
	}

	quotient := MulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, fmt.Errorf("%w: token1 output exceeds virtual reserve", ErrPriceOverflow)
	}
	return quotient.Sub(sqrtPX96, quotient), nil
}

// NextSqrtPriceFromInput returns the price after adding amountIn of the input token.
func NextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return NextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after removing amountOut of the output token.
func NextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return NextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// Amount0Delta is liquidity * (1/sqrtA - 1/sqrtB) in token0 units.
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, resolution)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return divRoundingUp(MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96), sqrtRatioAX96), nil
	}
	amount := MulDiv(numerator1, numerator2, sqrtRatioBX96)
	return amount.Quo(amount, sqrtRatioAX96), nil
}

// Amount1Delta is liquidity * (sqrtB - sqrtA) in token1 units.
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}
