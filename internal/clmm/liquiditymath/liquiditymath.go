// Package liquiditymath applies signed liquidity deltas to uint128 liquidity.
package liquiditymath

import (
	"fmt"
	"math/big"

	"ammstate/internal/model"
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow  = fmt.Errorf("%w: liquidity overflow", model.ErrMathDomain)
	ErrLiquidityUnderflow = fmt.Errorf("%w: liquidity underflow", model.ErrMathDomain)
)

// AddDelta returns x + y, failing when the result leaves the uint128 range.
func AddDelta(x, y *big.Int) (*big.Int, error) {
	z := new(big.Int).Add(x, y)
	if z.Sign() < 0 {
		return nil, ErrLiquidityUnderflow
	}
	if z.Cmp(maxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return z, nil
}

// SaturatingAdd returns x + y clamped to [0, 2^128-1].
func SaturatingAdd(x, y *big.Int) *big.Int {
	z := new(big.Int).Add(x, y)
	if z.Sign() < 0 {
		return z.SetInt64(0)
	}
	if z.Cmp(maxUint128) > 0 {
		return z.Set(maxUint128)
	}
	return z
}
