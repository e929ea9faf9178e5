package discovery

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Pair accessors tried in one batch. Several forks answer only a subset.
const v2PairABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "factory", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"name": "_reserve0", "type": "uint112"},
      {"name": "_reserve1", "type": "uint112"},
      {"name": "_blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"inputs": [], "name": "fee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "swapFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "stable", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "isStable", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"}
]`

const v3PoolABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "factory", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "fee", "outputs": [{"type": "uint24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "tickSpacing", "outputs": [{"type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "liquidity", "outputs": [{"type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "slot0", "outputs": [{"type": "uint160"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "wordPosition", "type": "int16"}], "name": "tickBitmap", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "tick", "type": "int24"}], "name": "ticks", "outputs": [{"type": "uint128"}], "stateMutability": "view", "type": "function"}
]`

const algebraPoolABIJSON = `[
  {"inputs": [], "name": "globalState", "outputs": [{"type": "uint160"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "activeIncentive", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "index", "type": "int16"}], "name": "tickTable", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "tickTreeRoot", "outputs": [{"type": "uint32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "index", "type": "int16"}], "name": "tickTreeSecondLayer", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// The three factory fee getters share a name, so each lives in its own ABI.
const factoryFeePoolStableABIJSON = `[
  {"inputs": [{"name": "pool", "type": "address"}, {"name": "stable", "type": "bool"}], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const factoryFeeStableABIJSON = `[
  {"inputs": [{"name": "stable", "type": "bool"}], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const factoryFeePoolABIJSON = `[
  {"inputs": [{"name": "pair", "type": "address"}], "name": "getFee", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const aeroFactoryABIJSON = `[
  {"inputs": [{"name": "tokenA", "type": "address"}, {"name": "tokenB", "type": "address"}, {"name": "stable", "type": "bool"}], "name": "getPair", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"}
]`

const quoterABIJSON = `[
  {
    "inputs": [
      {"name": "tokenIn", "type": "address"},
      {"name": "tokenOut", "type": "address"},
      {"name": "fee", "type": "uint24"},
      {"name": "amountIn", "type": "uint256"},
      {"name": "sqrtPriceLimitX96", "type": "uint160"}
    ],
    "name": "quoteExactInputSingle",
    "outputs": [{"name": "amountOut", "type": "uint256"}],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const erc20ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20Bytes32ABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

type lazyABI struct {
	once sync.Once
	abi  abi.ABI
	err  error
	json string
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.abi, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.abi, l.err
}

var (
	v2PairABI               = &lazyABI{json: v2PairABIJSON}
	v3PoolABI               = &lazyABI{json: v3PoolABIJSON}
	algebraPoolABI          = &lazyABI{json: algebraPoolABIJSON}
	factoryFeePoolStableABI = &lazyABI{json: factoryFeePoolStableABIJSON}
	factoryFeeStableABI     = &lazyABI{json: factoryFeeStableABIJSON}
	factoryFeePoolABI       = &lazyABI{json: factoryFeePoolABIJSON}
	aeroFactoryABI          = &lazyABI{json: aeroFactoryABIJSON}
	quoterABI               = &lazyABI{json: quoterABIJSON}
	erc20ABI                = &lazyABI{json: erc20ABIJSON}
	erc20Bytes32ABI         = &lazyABI{json: erc20Bytes32ABIJSON}
)

// Return shapes of slot0() and globalState(). Forks share the selectors and differ only in
// the number of words returned, so these are matched by exact length.
var (
	slot0CompactShape  = mustArguments("uint160", "int24", "uint16", "uint16", "uint16", "bool")
	slot0StandardShape = mustArguments("uint160", "int24", "uint16", "uint16", "uint16", "uint8", "bool")
	globalStateShape   = mustArguments("uint160", "int24", "uint16", "uint8", "uint16", "bool")
	feeInStateShape    = mustArguments("uint160", "int24", "uint16", "uint16", "uint8", "uint8", "bool")
	twoSideFeeShape    = mustArguments("uint160", "int24", "uint16", "uint16", "uint16", "uint8", "uint8", "bool")
	wideReservesShape  = mustArguments("uint256", "uint256")
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic("discovery: abi type " + t + ": " + err.Error())
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
