package paths

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"ammstate/internal/model"
)

// RouteFile is the YAML layout of a route file:
//
//	routes:
//	  - chain_id: 8453
//	    anchor_token: "0x4200000000000000000000000000000000000006"
//	    paths:
//	      - - pool: "0x..."
//	          token_in: "0x4200000000000000000000000000000000000006"
//	          token_out: "0x..."
type RouteFile struct {
	Routes []RouteSet `yaml:"routes"`
}

type RouteSet struct {
	ChainID     uint64       `yaml:"chain_id"`
	AnchorToken string       `yaml:"anchor_token"`
	Paths       [][]RouteHop `yaml:"paths"`
}

type RouteHop struct {
	Pool     string `yaml:"pool"`
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
}

// LoadRoutes reads a route file.
func LoadRoutes(path string) ([]SingleChainPaths, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return ParseRoutes(raw)
}

// ParseRoutes decodes route YAML and checks every address. Path validity is left to SetPaths.
func ParseRoutes(raw []byte) ([]SingleChainPaths, error) {
	var file RouteFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	out := make([]SingleChainPaths, 0, len(file.Routes))
	for i, set := range file.Routes {
		anchor, err := parseAddress(set.AnchorToken)
		if err != nil {
			return nil, fmt.Errorf("route set %d anchor_token: %w", i, err)
		}
		scp := SingleChainPaths{ChainID: set.ChainID, AnchorToken: anchor, Paths: make([]Path, 0, len(set.Paths))}
		for j, hops := range set.Paths {
			path := make(Path, 0, len(hops))
			for k, hop := range hops {
				d, err := hop.direction()
				if err != nil {
					return nil, fmt.Errorf("route set %d path %d hop %d: %w", i, j, k, err)
				}
				path = append(path, d)
			}
			scp.Paths = append(scp.Paths, path)
		}
		out = append(out, scp)
	}
	return out, nil
}

func (h RouteHop) direction() (PoolDirection, error) {
	pool, err := parseAddress(h.Pool)
	if err != nil {
		return PoolDirection{}, fmt.Errorf("pool: %w", err)
	}
	in, err := parseAddress(h.TokenIn)
	if err != nil {
		return PoolDirection{}, fmt.Errorf("token_in: %w", err)
	}
	out, err := parseAddress(h.TokenOut)
	if err != nil {
		return PoolDirection{}, fmt.Errorf("token_out: %w", err)
	}
	return PoolDirection{Pool: pool, TokenIn: in, TokenOut: out}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", model.ErrValidation, s)
	}
	return common.HexToAddress(s), nil
}
