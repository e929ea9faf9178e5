// Package registry holds the discovered pools of one chain together with the indexing state
// the log stream needs: last processed block, topics of interest and fee configuration.
package registry

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammstate/internal/pool"
)

// Registry indexes pools by address and by kind. The two pool indexes share one lock and
// always change together; topics, progress and fee configuration each have their own, so
// adding a topic never blocks a pool lookup. Pools are swapped in whole; their state changes
// only through their own locks.
type Registry struct {
	chainID uint64
	logger  *zap.Logger

	poolMu    sync.RWMutex
	byAddress map[common.Address]pool.Pool
	byKind    map[pool.Kind][]common.Address

	blockMu   sync.RWMutex
	lastBlock uint64

	topicMu  sync.RWMutex
	topics   []common.Hash
	topicSet map[common.Hash]struct{}

	profitMu   sync.RWMutex
	profitable map[common.Hash]struct{}

	feeMu        sync.RWMutex
	factoryToFee map[common.Address]uint64

	aeroMu        sync.RWMutex
	aeroFactories []common.Address
}

func New(chainID uint64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		chainID:      chainID,
		logger:       logger,
		byAddress:    make(map[common.Address]pool.Pool),
		byKind:       make(map[pool.Kind][]common.Address),
		topicSet:     make(map[common.Hash]struct{}),
		profitable:   make(map[common.Hash]struct{}),
		factoryToFee: make(map[common.Address]uint64),
	}
}

func (r *Registry) ChainID() uint64 { return r.chainID }

// AddPool inserts p, replacing any pool already registered at its address.
func (r *Registry) AddPool(p pool.Pool) {
	address := p.Address()

	r.poolMu.Lock()
	prev, replaced := r.byAddress[address]
	r.byAddress[address] = p
	if replaced && prev.Kind() != p.Kind() {
		r.dropKindLocked(prev.Kind(), address)
	}
	if !replaced || prev.Kind() != p.Kind() {
		r.byKind[p.Kind()] = append(r.byKind[p.Kind()], address)
	}
	r.poolMu.Unlock()

	r.logger.Debug("pool registered",
		zap.String("pool", address.Hex()),
		zap.String("kind", string(p.Kind())),
		zap.Bool("replaced", replaced),
	)
}

// Register adds p and the event topics of its kind.
func (r *Registry) Register(p pool.Pool) {
	r.AddPool(p)
	r.AddTopics(pool.Topics(p.Kind())...)
	r.AddProfitableTopics(pool.ProfitableTopics(p.Kind())...)
}

func (r *Registry) ExistsPool(address common.Address) bool {
	r.poolMu.RLock()
	defer r.poolMu.RUnlock()
	_, ok := r.byAddress[address]
	return ok
}

func (r *Registry) GetPool(address common.Address) (pool.Pool, bool) {
	r.poolMu.RLock()
	defer r.poolMu.RUnlock()
	p, ok := r.byAddress[address]
	return p, ok
}

// RemovePool deletes the pool from both indexes. Empty kinds are pruned.
func (r *Registry) RemovePool(address common.Address) (pool.Pool, bool) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	p, ok := r.byAddress[address]
	if !ok {
		return nil, false
	}
	delete(r.byAddress, address)
	r.dropKindLocked(p.Kind(), address)
	return p, true
}

func (r *Registry) dropKindLocked(kind pool.Kind, address common.Address) {
	addrs := r.byKind[kind]
	kept := addrs[:0]
	for _, a := range addrs {
		if a != address {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(r.byKind, kind)
		return
	}
	r.byKind[kind] = kept
}

// AllPools returns every pool ordered by address.
func (r *Registry) AllPools() []pool.Pool {
	r.poolMu.RLock()
	out := make([]pool.Pool, 0, len(r.byAddress))
	for _, p := range r.byAddress {
		out = append(out, p)
	}
	r.poolMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Address(), out[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out
}

// PoolsByKind returns the pools of one kind in insertion order.
func (r *Registry) PoolsByKind(kind pool.Kind) []pool.Pool {
	r.poolMu.RLock()
	defer r.poolMu.RUnlock()
	addrs := r.byKind[kind]
	out := make([]pool.Pool, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, r.byAddress[a])
	}
	return out
}

func (r *Registry) V2Pools() []pool.Pool { return r.PoolsByKind(pool.KindV2) }
func (r *Registry) V3Pools() []pool.Pool { return r.PoolsByKind(pool.KindV3) }

func (r *Registry) AddressesByKind(kind pool.Kind) []common.Address {
	r.poolMu.RLock()
	defer r.poolMu.RUnlock()
	return append([]common.Address(nil), r.byKind[kind]...)
}

// AllAddresses returns every registered address ordered by address.
func (r *Registry) AllAddresses() []common.Address {
	r.poolMu.RLock()
	out := make([]common.Address, 0, len(r.byAddress))
	for a := range r.byAddress {
		out = append(out, a)
	}
	r.poolMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (r *Registry) PoolCount() int {
	r.poolMu.RLock()
	defer r.poolMu.RUnlock()
	return len(r.byAddress)
}

func (r *Registry) LogSummary() string {
	var b strings.Builder
	b.WriteString("Pool Registry Summary:\n")
	b.WriteString("--------------------------------\n")
	for _, p := range r.AllPools() {
		fmt.Fprintf(&b, "Pool: %s\n", p.LogSummary())
	}
	return b.String()
}

func (r *Registry) LastProcessedBlock() uint64 {
	r.blockMu.RLock()
	defer r.blockMu.RUnlock()
	return r.lastBlock
}

func (r *Registry) SetLastProcessedBlock(block uint64) {
	r.blockMu.Lock()
	r.lastBlock = block
	r.blockMu.Unlock()
}

// AddTopics appends topics not seen before, keeping first-seen order.
func (r *Registry) AddTopics(topics ...common.Hash) {
	r.topicMu.Lock()
	defer r.topicMu.Unlock()
	for _, t := range topics {
		if _, ok := r.topicSet[t]; ok {
			continue
		}
		r.topicSet[t] = struct{}{}
		r.topics = append(r.topics, t)
	}
}

func (r *Registry) Topics() []common.Hash {
	r.topicMu.RLock()
	defer r.topicMu.RUnlock()
	return append([]common.Hash(nil), r.topics...)
}

func (r *Registry) AddProfitableTopics(topics ...common.Hash) {
	r.profitMu.Lock()
	defer r.profitMu.Unlock()
	for _, t := range topics {
		r.profitable[t] = struct{}{}
	}
}

// ProfitableTopics returns the profitable subset ordered by hash.
func (r *Registry) ProfitableTopics() []common.Hash {
	r.profitMu.RLock()
	out := make([]common.Hash, 0, len(r.profitable))
	for t := range r.profitable {
		out = append(out, t)
	}
	r.profitMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (r *Registry) IsProfitableTopic(topic common.Hash) bool {
	r.profitMu.RLock()
	defer r.profitMu.RUnlock()
	_, ok := r.profitable[topic]
	return ok
}

// SetFactoryToFee replaces the factory fee overrides.
func (r *Registry) SetFactoryToFee(fees map[common.Address]uint64) {
	cp := make(map[common.Address]uint64, len(fees))
	for k, v := range fees {
		cp[k] = v
	}
	r.feeMu.Lock()
	r.factoryToFee = cp
	r.feeMu.Unlock()
}

func (r *Registry) FactoryToFee() map[common.Address]uint64 {
	r.feeMu.RLock()
	defer r.feeMu.RUnlock()
	cp := make(map[common.Address]uint64, len(r.factoryToFee))
	for k, v := range r.factoryToFee {
		cp[k] = v
	}
	return cp
}

func (r *Registry) SetAeroFactories(factories []common.Address) {
	r.aeroMu.Lock()
	r.aeroFactories = append([]common.Address(nil), factories...)
	r.aeroMu.Unlock()
}

func (r *Registry) AeroFactories() []common.Address {
	r.aeroMu.RLock()
	defer r.aeroMu.RUnlock()
	return append([]common.Address(nil), r.aeroFactories...)
}
