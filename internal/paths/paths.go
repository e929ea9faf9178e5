// Package paths caches the swap routes that start at each pool, per chain, together with the
// routes of the other chains that share the batch.
package paths

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ammstate/internal/model"
)

// PoolDirection is one hop: swap TokenIn for TokenOut through Pool.
type PoolDirection struct {
	Pool     common.Address `json:"pool"`
	TokenIn  common.Address `json:"token_in"`
	TokenOut common.Address `json:"token_out"`
}

// Path is an ordered list of hops.
type Path []PoolDirection

// SingleChainPaths is a set of paths on one chain that all start from AnchorToken.
type SingleChainPaths struct {
	ChainID     uint64         `json:"chain_id"`
	AnchorToken common.Address `json:"anchor_token"`
	Paths       []Path         `json:"paths"`
}

// Entry is what the registry keeps per pool: the paths of the pool's chain that start at it
// and the paths of every other chain from the same batch.
type Entry struct {
	Source  SingleChainPaths
	Targets []SingleChainPaths
}

// Validate checks that every path is non-empty, starts with the anchor token and that each
// hop consumes what the previous one produced.
func (s SingleChainPaths) Validate() error {
	for i, path := range s.Paths {
		if len(path) == 0 {
			return fmt.Errorf("%w: chain %d path %d is empty", model.ErrValidation, s.ChainID, i)
		}
		if path[0].TokenIn != s.AnchorToken {
			return fmt.Errorf("%w: chain %d path %d starts with %s, not anchor token %s",
				model.ErrValidation, s.ChainID, i, path[0].TokenIn.Hex(), s.AnchorToken.Hex())
		}
		for j := 0; j < len(path)-1; j++ {
			if path[j].TokenOut != path[j+1].TokenIn {
				return fmt.Errorf("%w: chain %d path %d breaks between hop %d and %d",
					model.ErrValidation, s.ChainID, i, j, j+1)
			}
		}
	}
	return nil
}

// byFirstPool groups the paths by the pool of their first hop, keeping batch order.
func (s SingleChainPaths) byFirstPool() (map[common.Address][]Path, []common.Address) {
	groups := make(map[common.Address][]Path)
	var order []common.Address
	for _, path := range s.Paths {
		first := path[0].Pool
		if _, ok := groups[first]; !ok {
			order = append(order, first)
		}
		groups[first] = append(groups[first], clonePath(path))
	}
	return groups, order
}

func clonePath(p Path) Path {
	return append(Path(nil), p...)
}

func cloneSingleChain(s SingleChainPaths) SingleChainPaths {
	out := SingleChainPaths{ChainID: s.ChainID, AnchorToken: s.AnchorToken}
	if s.Paths != nil {
		out.Paths = make([]Path, len(s.Paths))
		for i, p := range s.Paths {
			out.Paths[i] = clonePath(p)
		}
	}
	return out
}
