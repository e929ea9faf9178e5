// Package pool models AMM pools: quoting against their curves and applying chain
// events to their state. Each pool guards its state with its own lock.
package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"ammstate/internal/model"
)

// Kind is the top-level pool variant.
type Kind string

const (
	KindV2 Kind = "v2"
	KindV3 Kind = "v3"
)

// SubType is the fork flavor inside a Kind.
type SubType string

const (
	SubTypeUniswapV2 SubType = "uniswap_v2"
	SubTypeStable    SubType = "stable"

	SubTypeUniswapV3         SubType = "uniswap_v3"
	SubTypePancakeV3         SubType = "pancake_v3"
	SubTypeAlgebraV3         SubType = "algebra_v3"
	SubTypeRamsesV2          SubType = "ramses_v2"
	SubTypeAlgebraTwoSideFee SubType = "algebra_two_side_fee"
	SubTypeAlgebraFeeInState SubType = "algebra_fee_in_state"
)

// FeeDenominator is the denominator of every raw fee.
const FeeDenominator = 1_000_000

// Pool is implemented by *V2Pool and *V3Pool.
type Pool interface {
	Address() common.Address
	Tokens() (common.Address, common.Address)
	// Fee is the fee as a ratio of the amount in.
	Fee() decimal.Decimal
	FeeRaw() uint64
	ContainsToken(token common.Address) bool
	ID() string
	Kind() Kind
	SubType() SubType

	CalculateOutput(tokenIn common.Address, amountIn *big.Int) (*big.Int, error)
	CalculateInput(tokenOut common.Address, amountOut *big.Int) (*big.Int, error)
	ApplySwap(tokenIn common.Address, amountIn, amountOut *big.Int) error
	// ApplyLog updates state from a chain event. Unknown topics are ignored; a recognized
	// event that fails to decode returns an error wrapping model.ErrDecode.
	ApplyLog(log types.Log) error

	LogSummary() string
	Snapshot() model.PoolSnapshot
	UpdatedAt() time.Time
}

func feeRatio(raw uint64) decimal.Decimal {
	return decimal.New(int64(raw), -6)
}

func feePercent(raw uint64) string {
	return decimal.New(int64(raw), -4).StringFixed(2)
}

// validSwapAmounts rejects a swap that did not move both sides.
func validSwapAmounts(amountIn, amountOut *big.Int) error {
	if amountIn == nil || amountOut == nil {
		return fmt.Errorf("%w: swap amounts are required", model.ErrValidation)
	}
	if amountIn.Sign() <= 0 || amountOut.Sign() <= 0 {
		return fmt.Errorf("%w: swap amounts must be positive, got in %s out %s", model.ErrValidation, amountIn, amountOut)
	}
	return nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func topic0(log types.Log) (common.Hash, bool) {
	if len(log.Topics) == 0 {
		return common.Hash{}, false
	}
	return log.Topics[0], true
}
