package paths

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/model"
)

// Registry holds the path entries of one chain keyed by the first pool of the paths.
type Registry struct {
	chainID uint64
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]Entry
}

func NewRegistry(chainID uint64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		chainID: chainID,
		logger:  logger,
		cache:   make(map[common.Address]Entry),
	}
}

func (r *Registry) ChainID() uint64 { return r.chainID }

// SetPaths overwrites the entry of pool.
func (r *Registry) SetPaths(pool common.Address, source SingleChainPaths, targets []SingleChainPaths) error {
	if len(source.Paths) == 0 {
		return fmt.Errorf("%w: no paths for pool %s", model.ErrValidation, pool.Hex())
	}
	entry := Entry{Source: cloneSingleChain(source), Targets: make([]SingleChainPaths, len(targets))}
	for i, t := range targets {
		entry.Targets[i] = cloneSingleChain(t)
	}

	r.mu.Lock()
	r.cache[pool] = entry
	r.mu.Unlock()

	r.logger.Info("paths set",
		zap.Uint64("chain_id", r.chainID),
		zap.String("pool", pool.Hex()),
		zap.Int("paths", len(source.Paths)),
		zap.Int("target_chains", len(targets)),
	)
	return nil
}

// PathsForPool returns the entry of pool. The entry is shared and must not be modified.
func (r *Registry) PathsForPool(pool common.Address) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[pool]
	return e, ok
}

// Pools lists the pools with an entry, ordered by address.
func (r *Registry) Pools() []common.Address {
	r.mu.RLock()
	out := make([]common.Address, 0, len(r.cache))
	for p := range r.cache {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// MultichainRegistry owns one Registry per chain. Its own lock only guards the set of chains.
type MultichainRegistry struct {
	logger *zap.Logger

	mu         sync.RWMutex
	registries map[uint64]*Registry
}

func NewMultichainRegistry(logger *zap.Logger) *MultichainRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultichainRegistry{
		logger:     logger,
		registries: make(map[uint64]*Registry),
	}
}

// NewPathRegistry admits chainID and returns its registry. An existing registry is kept.
func (m *MultichainRegistry) NewPathRegistry(chainID uint64) *Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.registries[chainID]; ok {
		return r
	}
	r := NewRegistry(chainID, m.logger)
	m.registries[chainID] = r
	return r
}

func (m *MultichainRegistry) PathRegistry(chainID uint64) (*Registry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.registries[chainID]
	return r, ok
}

func (m *MultichainRegistry) RemovePathRegistry(chainID uint64) {
	m.mu.Lock()
	delete(m.registries, chainID)
	m.mu.Unlock()
}

// ChainIDs lists the admitted chains in ascending order.
func (m *MultichainRegistry) ChainIDs() []uint64 {
	m.mu.RLock()
	out := make([]uint64, 0, len(m.registries))
	for id := range m.registries {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetPaths validates the whole batch, then stores, for every first pool of every chain entry,
// that pool's paths and the entries of all other chains in the batch. Nothing is written
// when any entry is invalid or names a chain without a registry.
func (m *MultichainRegistry) SetPaths(batch []SingleChainPaths) error {
	regs := make([]*Registry, len(batch))
	for i, scp := range batch {
		r, ok := m.PathRegistry(scp.ChainID)
		if !ok {
			return fmt.Errorf("%w: no path registry for chain %d", model.ErrValidation, scp.ChainID)
		}
		if len(scp.Paths) == 0 {
			return fmt.Errorf("%w: chain %d entry has no paths", model.ErrValidation, scp.ChainID)
		}
		if err := scp.Validate(); err != nil {
			return err
		}
		regs[i] = r
	}

	for i, scp := range batch {
		var targets []SingleChainPaths
		for _, other := range batch {
			if other.ChainID != scp.ChainID {
				targets = append(targets, other)
			}
		}
		groups, order := scp.byFirstPool()
		for _, pool := range order {
			source := SingleChainPaths{ChainID: scp.ChainID, AnchorToken: scp.AnchorToken, Paths: groups[pool]}
			if err := regs[i].SetPaths(pool, source, targets); err != nil {
				return err
			}
		}
	}
	return nil
}

// PathsForPool returns the entry of pool on chainID, or false when either is unknown.
func (m *MultichainRegistry) PathsForPool(chainID uint64, pool common.Address) (Entry, bool) {
	r, ok := m.PathRegistry(chainID)
	if !ok {
		return Entry{}, false
	}
	return r.PathsForPool(pool)
}
