package config

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"ammstate/internal/model"
)

// Chain is the resolved configuration of the selected chain, with flag and env overrides
// applied and every address parsed.
type Chain struct {
	ID                 uint64
	RPC                string
	Multicall          common.Address
	AnchorTokens       []common.Address
	Pools              []common.Address
	FactoryFees        map[common.Address]uint64
	AeroFactories      []common.Address
	RamsesQuoters      map[common.Address]common.Address
	DefaultFee         uint64
	FactoryDefaultFees map[common.Address]uint64
	RateLimit          float64
	RateBurst          int
}

// Chain resolves the entry for c.ChainID. Flat rpc, pool and factory-fees values override
// the file entry; a chain absent from the file is usable when an rpc is given.
func (c Config) Chain() (Chain, error) {
	entry, ok := c.Chains[c.ChainID]
	if c.RPCURL != "" {
		entry.RPC = c.RPCURL
	}
	if entry.RPC == "" {
		if !ok {
			return Chain{}, fmt.Errorf("chain %d is not configured: %w", c.ChainID, model.ErrValidation)
		}
		return Chain{}, fmt.Errorf("chain %d has no rpc url: %w", c.ChainID, model.ErrValidation)
	}

	out := Chain{
		ID:         c.ChainID,
		RPC:        entry.RPC,
		DefaultFee: entry.DefaultFee,
		RateLimit:  entry.RateLimit,
		RateBurst:  entry.RateBurst,
	}

	var err error
	if entry.Multicall != "" {
		if out.Multicall, err = parseAddress("multicall", entry.Multicall); err != nil {
			return Chain{}, err
		}
	}
	if out.AnchorTokens, err = parseAddresses("anchor_tokens", entry.AnchorTokens); err != nil {
		return Chain{}, err
	}
	pools := entry.Pools
	if len(c.Pools) > 0 {
		pools = c.Pools
	}
	if out.Pools, err = parseAddresses("pools", pools); err != nil {
		return Chain{}, err
	}
	if out.AeroFactories, err = parseAddresses("aero_factories", entry.AeroFactories); err != nil {
		return Chain{}, err
	}
	if out.FactoryFees, err = parseFeeMap("factory_fees", entry.FactoryFees); err != nil {
		return Chain{}, err
	}
	for factory, raw := range c.FactoryFees {
		addr, err := parseAddress("factory-fees", factory)
		if err != nil {
			return Chain{}, err
		}
		fee, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Chain{}, fmt.Errorf("factory-fees %s: invalid fee %q: %w", factory, raw, model.ErrValidation)
		}
		out.FactoryFees[addr] = fee
	}
	if out.FactoryDefaultFees, err = parseFeeMap("factory_default_fees", entry.FactoryDefaultFees); err != nil {
		return Chain{}, err
	}

	out.RamsesQuoters = make(map[common.Address]common.Address, len(entry.RamsesQuoters))
	for factory, quoter := range entry.RamsesQuoters {
		f, err := parseAddress("ramses_quoters", factory)
		if err != nil {
			return Chain{}, err
		}
		q, err := parseAddress("ramses_quoters", quoter)
		if err != nil {
			return Chain{}, err
		}
		out.RamsesQuoters[f] = q
	}

	return out, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q: %w", field, value, model.ErrValidation)
	}
	return common.HexToAddress(value), nil
}

func parseAddresses(field string, values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for _, value := range cleanStrings(values) {
		addr, err := parseAddress(field, value)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseFeeMap(field string, values map[string]uint64) (map[common.Address]uint64, error) {
	out := make(map[common.Address]uint64, len(values))
	for key, fee := range values {
		addr, err := parseAddress(field, key)
		if err != nil {
			return nil, err
		}
		out[addr] = fee
	}
	return out, nil
}
