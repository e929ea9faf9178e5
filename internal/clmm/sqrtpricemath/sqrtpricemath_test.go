package sqrtpricemath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammstate/internal/model"
)

func expandTo18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func encodePriceSqrt(reserve1, reserve0 int64) *big.Int {
	num := new(big.Int).Lsh(big.NewInt(reserve1), 192)
	num.Quo(num, big.NewInt(reserve0))
	return num.Sqrt(num)
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	price := encodePriceSqrt(1, 1)
	liquidity := expandTo18(1)

	t.Run("zero liquidity", func(t *testing.T) {
		_, err := NextSqrtPriceFromInput(price, big.NewInt(0), big.NewInt(1), true)
		assert.ErrorIs(t, err, model.ErrMathDomain)
	})

	t.Run("zero amount keeps price", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(price, liquidity, big.NewInt(0), true)
		require.NoError(t, err)
		assert.Zero(t, next.Cmp(price))

		next, err = NextSqrtPriceFromInput(price, liquidity, big.NewInt(0), false)
		require.NoError(t, err)
		assert.Zero(t, next.Cmp(price))
	})

	t.Run("token1 input of 0.1", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(price, liquidity, big.NewInt(1e17), false)
		require.NoError(t, err)
		assert.Equal(t, "87150978765690771352898345369", next.String())
	})

	t.Run("token0 input of 0.1", func(t *testing.T) {
		next, err := NextSqrtPriceFromInput(price, liquidity, big.NewInt(1e17), true)
		require.NoError(t, err)
		assert.Equal(t, "72025602285694852357767227579", next.String())
	})
}

func TestNextSqrtPriceFromOutput(t *testing.T) {
	price := encodePriceSqrt(1, 1)
	liquidity := expandTo18(1)

	t.Run("token1 output of 0.1", func(t *testing.T) {
		next, err := NextSqrtPriceFromOutput(price, liquidity, big.NewInt(1e17), true)
		require.NoError(t, err)
		assert.Equal(t, "71305346262837903834189555302", next.String())
	})

	t.Run("token0 output of 0.1", func(t *testing.T) {
		next, err := NextSqrtPriceFromOutput(price, liquidity, big.NewInt(1e17), false)
		require.NoError(t, err)
		assert.Equal(t, "88031291682515930659493278152", next.String())
	})

	t.Run("output larger than virtual reserve", func(t *testing.T) {
		_, err := NextSqrtPriceFromOutput(price, liquidity, expandTo18(2), false)
		assert.ErrorIs(t, err, model.ErrMathDomain)
	})
}

func TestAmountDeltas(t *testing.T) {
	price := encodePriceSqrt(1, 1)
	upper := encodePriceSqrt(121, 100)
	liquidity := expandTo18(1)

	amount0, err := Amount0Delta(price, upper, liquidity, true)
	require.NoError(t, err)
	assert.Equal(t, "90909090909090910", amount0.String())

	amount0Down, err := Amount0Delta(price, upper, liquidity, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), new(big.Int).Sub(amount0, amount0Down).Int64())

	amount1 := Amount1Delta(price, upper, liquidity, true)
	assert.Equal(t, "100000000000000000", amount1.String())

	amount1Down := Amount1Delta(price, upper, liquidity, false)
	assert.Equal(t, int64(1), new(big.Int).Sub(amount1, amount1Down).Int64())

	_, err = Amount0Delta(big.NewInt(0), upper, liquidity, true)
	assert.ErrorIs(t, err, ErrSqrtPriceZero)
}
