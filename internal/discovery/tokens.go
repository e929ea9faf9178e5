package discovery

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"ammstate/internal/model"
)

// DefaultDecimals is assumed for tokens whose decimals() does not answer.
const DefaultDecimals = 18

const defaultTokenCacheSize = 4096

type batchFunc func(ctx context.Context, block *big.Int, calls []call) ([]reply, error)

// TokenCache caches ERC20 metadata by address.
type TokenCache struct {
	cache  *lru.Cache
	batch  batchFunc
	logger *zap.Logger
}

func NewTokenCache(size int, batch batchFunc, logger *zap.Logger) (*TokenCache, error) {
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCache{cache: cache, batch: batch, logger: logger}, nil
}

func (c *TokenCache) Get(token common.Address) (model.TokenMeta, bool) {
	v, ok := c.cache.Get(token)
	if !ok {
		return model.TokenMeta{}, false
	}
	return v.(model.TokenMeta), true
}

func (c *TokenCache) Set(token common.Address, meta model.TokenMeta) {
	c.cache.Add(token, meta)
}

// Lookup returns metadata for tokens in order, fetching the missing ones in one batch.
// Tokens that do not answer decimals() get DefaultDecimals; the fallback is cached too.
func (c *TokenCache) Lookup(ctx context.Context, block *big.Int, tokens ...common.Address) ([]model.TokenMeta, error) {
	out := make([]model.TokenMeta, len(tokens))
	var missing []int
	for i, token := range tokens {
		if meta, ok := c.Get(token); ok {
			out[i] = meta
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	calls := make([]call, 0, 2*len(missing))
	for _, i := range missing {
		calls = append(calls,
			call{target: tokens[i], abi: erc20ABI, method: "decimals"},
			call{target: tokens[i], abi: erc20ABI, method: "symbol"},
		)
	}
	replies, err := c.batch(ctx, block, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch token metadata: %w", err)
	}

	for j, i := range missing {
		token := tokens[i]
		meta := model.TokenMeta{Address: token.Hex(), Decimals: DefaultDecimals}
		if dec, ok := replyBig(replies[2*j]); ok && dec.IsUint64() && dec.Uint64() <= 77 {
			meta.Decimals = uint8(dec.Uint64())
		} else {
			c.logger.Debug("decimals call failed, assuming 18", zap.String("token", token.Hex()))
		}
		meta.Symbol = decodeSymbol(replies[2*j+1])
		c.Set(token, meta)
		out[i] = meta
	}
	return out, nil
}

// decodeSymbol accepts both string and bytes32 symbols.
func decodeSymbol(r reply) string {
	if r.decoded() {
		if s, ok := r.values[0].(string); ok {
			return s
		}
	}
	if !r.ok || len(r.data) != 32 {
		return ""
	}
	parsed, err := erc20Bytes32ABI.get()
	if err != nil {
		return ""
	}
	values, err := parsed.Unpack("symbol", r.data)
	if err != nil || len(values) == 0 {
		return ""
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return ""
	}
	return string(bytes.TrimRight(raw[:], "\x00"))
}
