package pool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"ammstate/internal/curve"
	"ammstate/internal/model"
)

// V2Params describes a V2 pool as discovered on chain.
type V2Params struct {
	Address   common.Address
	Token0    common.Address
	Token1    common.Address
	Factory   common.Address
	Decimals0 uint8
	Decimals1 uint8
	Reserve0  *big.Int
	Reserve1  *big.Int
	Fee       uint64
	SubType   SubType
}

// V2Pool is a constant-product or stable-curve pair.
type V2Pool struct {
	address common.Address
	token0  common.Address
	token1  common.Address
	factory common.Address
	subType SubType
	scale0  *big.Int
	scale1  *big.Int
	fee     uint64

	mu        sync.RWMutex
	reserve0  *big.Int
	reserve1  *big.Int
	updatedAt time.Time
}

// NewV2Pool builds a pool. An empty sub-type means the plain constant product.
func NewV2Pool(p V2Params) *V2Pool {
	subType := p.SubType
	if subType == "" {
		subType = SubTypeUniswapV2
	}
	return &V2Pool{
		address:   p.Address,
		token0:    p.Token0,
		token1:    p.Token1,
		factory:   p.Factory,
		subType:   subType,
		scale0:    curve.Scale(p.Decimals0),
		scale1:    curve.Scale(p.Decimals1),
		fee:       p.Fee,
		reserve0:  copyBig(p.Reserve0),
		reserve1:  copyBig(p.Reserve1),
		updatedAt: time.Now(),
	}
}

func (p *V2Pool) Address() common.Address                 { return p.address }
func (p *V2Pool) Tokens() (common.Address, common.Address) { return p.token0, p.token1 }
func (p *V2Pool) Fee() decimal.Decimal                    { return feeRatio(p.fee) }
func (p *V2Pool) FeeRaw() uint64                          { return p.fee }
func (p *V2Pool) Kind() Kind                              { return KindV2 }
func (p *V2Pool) SubType() SubType                        { return p.subType }
func (p *V2Pool) Factory() common.Address                 { return p.factory }

func (p *V2Pool) ContainsToken(token common.Address) bool {
	return token == p.token0 || token == p.token1
}

func (p *V2Pool) ID() string {
	return fmt.Sprintf("v2-%s-%s-%s", p.address.Hex(), p.token0.Hex(), p.token1.Hex())
}

// Reserves returns copies of the current reserves.
func (p *V2Pool) Reserves() (*big.Int, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyBig(p.reserve0), copyBig(p.reserve1)
}

func (p *V2Pool) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// IsValid reports whether both reserves are positive.
func (p *V2Pool) IsValid() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserve0.Sign() > 0 && p.reserve1.Sign() > 0
}

// orient returns reserves and scales in trade direction.
func (p *V2Pool) orient(tokenIn common.Address) (reserveIn, reserveOut, scaleIn, scaleOut *big.Int, err error) {
	switch tokenIn {
	case p.token0:
		return p.reserve0, p.reserve1, p.scale0, p.scale1, nil
	case p.token1:
		return p.reserve1, p.reserve0, p.scale1, p.scale0, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("%w: %s", model.ErrTokenMismatch, tokenIn.Hex())
	}
}

// CalculateOutput quotes an exact input of tokenIn.
func (p *V2Pool) CalculateOutput(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	reserveIn, reserveOut, scaleIn, scaleOut, err := p.orient(tokenIn)
	if err != nil {
		return nil, err
	}
	if p.subType == SubTypeStable {
		return curve.StableAmountOut(amountIn, reserveIn, reserveOut, scaleIn, scaleOut, p.fee)
	}
	return curve.AmountOut(amountIn, reserveIn, reserveOut, p.fee)
}

// CalculateInput returns the input needed to receive amountOut of tokenOut.
func (p *V2Pool) CalculateInput(tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var reserveIn, reserveOut *big.Int
	switch tokenOut {
	case p.token0:
		reserveIn, reserveOut = p.reserve1, p.reserve0
	case p.token1:
		reserveIn, reserveOut = p.reserve0, p.reserve1
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrTokenMismatch, tokenOut.Hex())
	}
	if p.subType == SubTypeStable {
		return curve.StableAmountIn(amountOut, reserveIn, reserveOut, p.fee)
	}
	return curve.AmountIn(amountOut, reserveIn, reserveOut, p.fee)
}

// ApplySwap moves reserves for a swap that already happened on chain.
func (p *V2Pool) ApplySwap(tokenIn common.Address, amountIn, amountOut *big.Int) error {
	if err := validSwapAmounts(amountIn, amountOut); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut, _, _, err := p.orient(tokenIn)
	if err != nil {
		return err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return fmt.Errorf("%w: output %s drains reserve %s", model.ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, amountOut)
	p.updatedAt = time.Now()
	return nil
}

// UpdateReserves overwrites both reserves.
func (p *V2Pool) UpdateReserves(reserve0, reserve1 *big.Int) {
	p.mu.Lock()
	p.reserve0 = copyBig(reserve0)
	p.reserve1 = copyBig(reserve1)
	p.updatedAt = time.Now()
	p.mu.Unlock()
}

// ApplyLog applies Sync events. The pair Swap event is recognized but carries no state:
// every swap is followed by a Sync.
func (p *V2Pool) ApplyLog(log types.Log) error {
	topic, ok := topic0(log)
	if !ok {
		return nil
	}
	var event string
	var get = V2PairEvents
	switch topic {
	case TopicV2Sync:
		event = "Sync"
	case TopicV2WideSync:
		event, get = "Sync", V2WideSyncEvent
	default:
		return nil
	}

	parsed, err := get()
	if err != nil {
		return err
	}
	_, values, err := decodeLog(parsed.Events[event], log)
	if err != nil {
		return err
	}
	reserves, err := bigValues(values, 2)
	if err != nil {
		return err
	}
	p.UpdateReserves(reserves[0], reserves[1])
	return nil
}

func (p *V2Pool) LogSummary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("V2 Pool %s - %s <> %s (reserves: %s, %s)",
		p.address.Hex(), p.token0.Hex(), p.token1.Hex(), p.reserve0, p.reserve1)
}

func (p *V2Pool) Snapshot() model.PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.PoolSnapshot{
		ID:        p.ID(),
		Kind:      string(KindV2),
		SubType:   string(p.subType),
		Address:   p.address.Hex(),
		Token0:    p.token0.Hex(),
		Token1:    p.token1.Hex(),
		Fee:       p.fee,
		Decimals0: p.scale0.String(),
		Decimals1: p.scale1.String(),
		Reserve0:  bigString(p.reserve0),
		Reserve1:  bigString(p.reserve1),
		Factory:   p.factory.Hex(),
		UpdatedAt: p.updatedAt,
	}
}
