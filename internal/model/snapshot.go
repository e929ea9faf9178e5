package model

import "time"

// PoolSnapshot is a serializable view of a pool's state at a point in time.
type PoolSnapshot struct {
	ChainID   uint64 `json:"chain_id"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	SubType   string `json:"sub_type"`
	Address   string `json:"address"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Fee       uint64 `json:"fee"`
	Decimals0 string `json:"decimals0,omitempty"`
	Decimals1 string `json:"decimals1,omitempty"`
	Reserve0  string `json:"reserve0,omitempty"`
	Reserve1  string `json:"reserve1,omitempty"`

	TickSpacing           int32          `json:"tick_spacing,omitempty"`
	SqrtPriceX96          string         `json:"sqrt_price_x96,omitempty"`
	Tick                  int32          `json:"tick,omitempty"`
	Liquidity             string         `json:"liquidity,omitempty"`
	Factory               string         `json:"factory,omitempty"`
	RatioConversionFactor string         `json:"ratio_conversion_factor,omitempty"`
	Ticks                 []TickSnapshot `json:"ticks,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TickSnapshot is one initialized tick.
type TickSnapshot struct {
	Index          int32  `json:"index"`
	LiquidityNet   string `json:"liquidity_net"`
	LiquidityGross string `json:"liquidity_gross"`
}
