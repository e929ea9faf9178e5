package clmm

import (
	"fmt"
	"math/big"

	"ammstate/internal/clmm/liquiditymath"
	"ammstate/internal/clmm/tickmath"
	"ammstate/internal/model"
)

func checkRange(lower, upper int32) error {
	if lower >= upper {
		return fmt.Errorf("%w: tick range [%d, %d) is empty", model.ErrValidation, lower, upper)
	}
	if lower < tickmath.MinTick || upper > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d)", tickmath.ErrTickOutOfBounds, lower, upper)
	}
	return nil
}

func (s *State) inRange(lower, upper int32) bool {
	return lower <= s.Tick && s.Tick < upper
}

// Mint adds amount of liquidity over [lower, upper), creating boundary ticks as needed.
func (s *State) Mint(lower, upper int32, amount *big.Int) error {
	if err := checkRange(lower, upper); err != nil {
		return err
	}
	if s.Ticks == nil {
		s.Ticks = NewTickMap()
	}
	s.addToTick(lower, amount, amount)
	s.addToTick(upper, new(big.Int).Neg(amount), amount)
	if s.inRange(lower, upper) {
		s.Liquidity = liquiditymath.SaturatingAdd(s.Liquidity, amount)
	}
	return nil
}

// Burn removes amount of liquidity over [lower, upper). Both boundary ticks must exist.
func (s *State) Burn(lower, upper int32, amount *big.Int) error {
	if err := checkRange(lower, upper); err != nil {
		return err
	}
	if _, ok := s.Ticks.Get(lower); !ok {
		return fmt.Errorf("%w: burn from uninitialized tick %d", model.ErrValidation, lower)
	}
	if _, ok := s.Ticks.Get(upper); !ok {
		return fmt.Errorf("%w: burn from uninitialized tick %d", model.ErrValidation, upper)
	}
	negAmount := new(big.Int).Neg(amount)
	s.addToTick(lower, negAmount, negAmount)
	s.addToTick(upper, amount, negAmount)
	if s.inRange(lower, upper) {
		s.Liquidity = liquiditymath.SaturatingAdd(s.Liquidity, negAmount)
	}
	return nil
}

func (s *State) addToTick(idx int32, netDelta, grossDelta *big.Int) {
	t, ok := s.Ticks.Get(idx)
	if !ok {
		t = Tick{Index: idx, LiquidityNet: new(big.Int), LiquidityGross: new(big.Int)}
	}
	s.Ticks.Set(Tick{
		Index:          idx,
		LiquidityNet:   new(big.Int).Add(t.LiquidityNet, netDelta),
		LiquidityGross: liquiditymath.SaturatingAdd(t.LiquidityGross, grossDelta),
	})
}
