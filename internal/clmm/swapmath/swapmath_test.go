package swapmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammstate/internal/clmm/sqrtpricemath"
)

func expandTo18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func encodePriceSqrt(reserve1, reserve0 int64) *big.Int {
	num := new(big.Int).Lsh(big.NewInt(reserve1), 192)
	num.Quo(num, big.NewInt(reserve0))
	return num.Sqrt(num)
}

func TestComputeSwapStep(t *testing.T) {
	price := encodePriceSqrt(1, 1)
	liquidity := expandTo18(2)

	t.Run("exact in capped at target", func(t *testing.T) {
		target := encodePriceSqrt(101, 100)
		amount := expandTo18(1)
		step, err := ComputeSwapStep(price, target, liquidity, amount, 600)
		require.NoError(t, err)

		assert.Equal(t, "9975124224178055", step.AmountIn.String())
		assert.Equal(t, "5988667735148", step.FeeAmount.String())
		assert.Equal(t, "9925619580021728", step.AmountOut.String())
		assert.Zero(t, step.SqrtRatioNextX96.Cmp(target))
		assert.Negative(t, new(big.Int).Add(step.AmountIn, step.FeeAmount).Cmp(amount))
	})

	t.Run("exact out capped at target", func(t *testing.T) {
		target := encodePriceSqrt(101, 100)
		amount := new(big.Int).Neg(expandTo18(1))
		step, err := ComputeSwapStep(price, target, liquidity, amount, 600)
		require.NoError(t, err)

		assert.Equal(t, "9975124224178055", step.AmountIn.String())
		assert.Equal(t, "5988667735148", step.FeeAmount.String())
		assert.Equal(t, "9925619580021728", step.AmountOut.String())
		assert.Zero(t, step.SqrtRatioNextX96.Cmp(target))
	})

	t.Run("exact in fully spent", func(t *testing.T) {
		target := encodePriceSqrt(1000, 100)
		amount := expandTo18(1)
		step, err := ComputeSwapStep(price, target, liquidity, amount, 600)
		require.NoError(t, err)

		assert.Equal(t, "999400000000000000", step.AmountIn.String())
		assert.Equal(t, "600000000000000", step.FeeAmount.String())
		assert.Equal(t, "666399946655997866", step.AmountOut.String())
		assert.Negative(t, step.SqrtRatioNextX96.Cmp(target))
		assert.Zero(t, new(big.Int).Add(step.AmountIn, step.FeeAmount).Cmp(amount))
	})

	t.Run("exact out fully received", func(t *testing.T) {
		target := encodePriceSqrt(10000, 100)
		amount := new(big.Int).Neg(expandTo18(1))
		step, err := ComputeSwapStep(price, target, liquidity, amount, 600)
		require.NoError(t, err)

		assert.Equal(t, "2000000000000000000", step.AmountIn.String())
		assert.Equal(t, "1200720432259356", step.FeeAmount.String())
		assert.Equal(t, expandTo18(1).String(), step.AmountOut.String())
		assert.Negative(t, step.SqrtRatioNextX96.Cmp(target))

		next, err := sqrtpricemath.NextSqrtPriceFromOutput(price, liquidity, expandTo18(1), false)
		require.NoError(t, err)
		assert.Zero(t, next.Cmp(step.SqrtRatioNextX96))
	})

	t.Run("entire input taken as fee", func(t *testing.T) {
		step, err := ComputeSwapStep(big.NewInt(2413), mustBig("79887613182836312"), mustBig("1985041575832132834610021537970"), big.NewInt(10), 1872)
		require.NoError(t, err)
		assert.Equal(t, "0", step.AmountIn.String())
		assert.Equal(t, "10", step.FeeAmount.String())
		assert.Equal(t, "0", step.AmountOut.String())
		assert.Equal(t, "2413", step.SqrtRatioNextX96.String())
	})
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}
