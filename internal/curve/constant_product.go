// Package curve implements the V2 pricing curves: the constant product and the
// Solidly-style stable invariant x³y + xy³.
package curve

import (
	"fmt"
	"math/big"

	"ammstate/internal/model"
)

// FeeDenominator is the fixed denominator of every fee numerator (1,000,000 = 100%).
const FeeDenominator = 1_000_000

var (
	feeDenominator = big.NewInt(FeeDenominator)
	one            = big.NewInt(1)
	ten            = big.NewInt(10)

	scales [19]*big.Int
)

func init() {
	scales[0] = big.NewInt(1)
	for i := 1; i < len(scales); i++ {
		scales[i] = new(big.Int).Mul(scales[i-1], ten)
	}
}

// Scale returns 10^decimals. The returned value must not be modified.
func Scale(decimals uint8) *big.Int {
	if int(decimals) < len(scales) {
		return scales[decimals]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

func checkInputs(amount, reserveIn, reserveOut *big.Int, fee uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return model.ErrZeroAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return fmt.Errorf("%w: reserves must be positive", model.ErrMathDomain)
	}
	if fee >= FeeDenominator {
		return fmt.Errorf("%w: fee %d out of range", model.ErrMathDomain, fee)
	}
	return nil
}

// AmountOut returns floor(amountIn*(D-fee)*reserveOut / (reserveIn*D + amountIn*(D-fee))).
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, fee uint64) (*big.Int, error) {
	if err := checkInputs(amountIn, reserveIn, reserveOut, fee); err != nil {
		return nil, err
	}

	amountInWithFee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(FeeDenominator-fee))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)

	out := numerator.Div(numerator, denominator)
	if out.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: output %s exceeds reserve %s", model.ErrInsufficientLiquidity, out, reserveOut)
	}
	return out, nil
}

// AmountIn returns the smallest input that yields at least amountOut, rounded up by one.
func AmountIn(amountOut, reserveIn, reserveOut *big.Int, fee uint64) (*big.Int, error) {
	if err := checkInputs(amountOut, reserveIn, reserveOut, fee); err != nil {
		return nil, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: output %s exceeds reserve %s", model.ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, new(big.Int).SetUint64(FeeDenominator-fee))

	in := numerator.Div(numerator, denominator)
	return in.Add(in, one), nil
}
