// Package clmm simulates swaps against concentrated-liquidity state and maintains the
// sparse map of initialized ticks.
package clmm

import (
	"math/big"
	"sort"
)

// Tick is an initialized tick. LiquidityNet is added when price crosses the tick upward.
type Tick struct {
	Index          int32
	LiquidityNet   *big.Int
	LiquidityGross *big.Int
}

// TickMap is a sparse ordered map of initialized ticks.
// It is not safe for concurrent use; pools guard it with their own lock.
type TickMap struct {
	ticks map[int32]Tick
	index []int32
}

// NewTickMap builds a map from ticks. Entries with zero gross liquidity are dropped.
func NewTickMap(ticks ...Tick) *TickMap {
	m := &TickMap{ticks: make(map[int32]Tick, len(ticks))}
	for _, t := range ticks {
		m.Set(t)
	}
	return m
}

// Len reports the number of initialized ticks.
func (m *TickMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.index)
}

// Get returns the tick at idx.
func (m *TickMap) Get(idx int32) (Tick, bool) {
	if m == nil {
		return Tick{}, false
	}
	t, ok := m.ticks[idx]
	return t, ok
}

// Set inserts or replaces a tick. A tick with zero gross liquidity is removed instead.
func (m *TickMap) Set(t Tick) {
	if t.LiquidityGross == nil || t.LiquidityGross.Sign() == 0 {
		m.Delete(t.Index)
		return
	}
	if t.LiquidityNet == nil {
		t.LiquidityNet = new(big.Int)
	}
	if _, ok := m.ticks[t.Index]; !ok {
		pos := sort.Search(len(m.index), func(i int) bool { return m.index[i] >= t.Index })
		m.index = append(m.index, 0)
		copy(m.index[pos+1:], m.index[pos:])
		m.index[pos] = t.Index
	}
	m.ticks[t.Index] = t
}

// Delete removes the tick at idx if present.
func (m *TickMap) Delete(idx int32) {
	if _, ok := m.ticks[idx]; !ok {
		return
	}
	delete(m.ticks, idx)
	pos := sort.Search(len(m.index), func(i int) bool { return m.index[i] >= idx })
	m.index = append(m.index[:pos], m.index[pos+1:]...)
}

// Ticks returns the initialized ticks in ascending order.
func (m *TickMap) Ticks() []Tick {
	if m == nil {
		return nil
	}
	out := make([]Tick, 0, len(m.index))
	for _, idx := range m.index {
		out = append(out, m.ticks[idx])
	}
	return out
}

// Clone returns a deep copy.
func (m *TickMap) Clone() *TickMap {
	c := &TickMap{ticks: make(map[int32]Tick, m.Len()), index: make([]int32, 0, m.Len())}
	if m == nil {
		return c
	}
	for _, idx := range m.index {
		t := m.ticks[idx]
		c.ticks[idx] = Tick{
			Index:          idx,
			LiquidityNet:   new(big.Int).Set(t.LiquidityNet),
			LiquidityGross: new(big.Int).Set(t.LiquidityGross),
		}
		c.index = append(c.index, idx)
	}
	return c
}

// below returns the largest initialized tick <= tick.
func (m *TickMap) below(tick int32) (int32, bool) {
	pos := sort.Search(len(m.index), func(i int) bool { return m.index[i] > tick })
	if pos == 0 {
		return 0, false
	}
	return m.index[pos-1], true
}

// above returns the smallest initialized tick > tick.
func (m *TickMap) above(tick int32) (int32, bool) {
	pos := sort.Search(len(m.index), func(i int) bool { return m.index[i] > tick })
	if pos == len(m.index) {
		return 0, false
	}
	return m.index[pos], true
}

// NextInitializedTickWithinOneWord mirrors the on-chain bitmap walk: it stops at the
// boundary of the current 256-tick word when no initialized tick lies inside it.
// ok is false when no initialized tick exists in that direction at all.
func (m *TickMap) NextInitializedTickWithinOneWord(tick, spacing int32, lte bool) (next int32, initialized, ok bool) {
	if m.Len() == 0 {
		return 0, false, false
	}
	compressed := floorDiv(tick, spacing)
	if lte {
		wordStart := (compressed >> 8) << 8
		candidate, found := m.below(tick)
		if !found {
			return 0, false, false
		}
		if floorDiv(candidate, spacing) >= wordStart {
			return candidate, true, true
		}
		return wordStart * spacing, false, true
	}

	wordEnd := (((compressed + 1) >> 8) << 8) + 255
	candidate, found := m.above(tick)
	if !found {
		return 0, false, false
	}
	if floorDiv(candidate, spacing) <= wordEnd {
		return candidate, true, true
	}
	return wordEnd * spacing, false, true
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
