package curve

import (
	"fmt"
	"math/big"

	"ammstate/internal/model"
)

// MaxStableIterations bounds the Newton iteration in GetY.
const MaxStableIterations = 255

var wad = big.NewInt(1e18)

// K returns the stable invariant x³y + xy³ after normalizing both reserves to 18 decimals.
// scale0 and scale1 are 10^decimals of the two tokens.
func K(x, y, scale0, scale1 *big.Int) *big.Int {
	nx := new(big.Int).Mul(x, wad)
	nx.Quo(nx, scale0)
	ny := new(big.Int).Mul(y, wad)
	ny.Quo(ny, scale1)

	a := new(big.Int).Mul(nx, ny)
	a.Quo(a, wad)

	b := new(big.Int).Mul(nx, nx)
	b.Quo(b, wad)
	y2 := new(big.Int).Mul(ny, ny)
	y2.Quo(y2, wad)
	b.Add(b, y2)

	a.Mul(a, b)
	return a.Quo(a, wad)
}

// f is the invariant over already normalized reserves.
func f(x0, y *big.Int) *big.Int {
	a := new(big.Int).Mul(x0, y)
	a.Quo(a, wad)

	x2 := new(big.Int).Mul(x0, x0)
	x2.Quo(x2, wad)
	y2 := new(big.Int).Mul(y, y)
	y2.Quo(y2, wad)
	x2.Add(x2, y2)

	a.Mul(a, x2)
	return a.Quo(a, wad)
}

// d is the derivative of f with respect to y.
func d(x0, y *big.Int) *big.Int {
	y2 := new(big.Int).Mul(y, y)
	y2.Quo(y2, wad)
	left := new(big.Int).Mul(big.NewInt(3), x0)
	left.Mul(left, y2)
	left.Quo(left, wad)

	x3 := new(big.Int).Mul(x0, x0)
	x3.Quo(x3, wad)
	x3.Mul(x3, x0)
	x3.Quo(x3, wad)

	return left.Add(left, x3)
}

// GetY solves f(x0, y) = xy for y by Newton's method starting at y.
// The result is the smallest y with f(x0, y) >= xy. The fallback order when the
// step rounds to zero matters: equality, then the one-unit neighbour, then a forced unit step.
func GetY(x0, xy, y *big.Int) (*big.Int, error) {
	y = new(big.Int).Set(y)
	dy := new(big.Int)
	for i := 0; i < MaxStableIterations; i++ {
		k := f(x0, y)
		deriv := d(x0, y)
		if deriv.Sign() == 0 {
			return nil, fmt.Errorf("%w: zero derivative in stable solver", model.ErrMathDomain)
		}

		if k.Cmp(xy) < 0 {
			dy.Sub(xy, k)
			dy.Mul(dy, wad)
			dy.Quo(dy, deriv)
			if dy.Sign() == 0 {
				if k.Cmp(xy) == 0 {
					return y, nil
				}
				next := new(big.Int).Add(y, one)
				if f(x0, next).Cmp(xy) > 0 {
					return next, nil
				}
				dy.SetInt64(1)
			}
			y.Add(y, dy)
			continue
		}

		dy.Sub(k, xy)
		dy.Mul(dy, wad)
		dy.Quo(dy, deriv)
		if dy.Sign() == 0 {
			if k.Cmp(xy) == 0 {
				return y, nil
			}
			prev := new(big.Int).Sub(y, one)
			if f(x0, prev).Cmp(xy) < 0 {
				return y, nil
			}
			dy.SetInt64(1)
		}
		y.Sub(y, dy)
		if y.Sign() < 0 {
			return nil, fmt.Errorf("%w: stable solver went negative", model.ErrMathDomain)
		}
	}
	return nil, fmt.Errorf("%w: stable solver did not converge in %d iterations", model.ErrMathDomain, MaxStableIterations)
}

// StableAmountOut quotes the stable curve. scaleIn and scaleOut are 10^decimals of the
// input and output tokens.
func StableAmountOut(amountIn, reserveIn, reserveOut, scaleIn, scaleOut *big.Int, fee uint64) (*big.Int, error) {
	if err := checkInputs(amountIn, reserveIn, reserveOut, fee); err != nil {
		return nil, err
	}

	amountInWithFee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(FeeDenominator-fee))
	amountInWithFee.Quo(amountInWithFee, feeDenominator)

	xy := K(reserveIn, reserveOut, scaleIn, scaleOut)

	normIn := new(big.Int).Mul(reserveIn, wad)
	normIn.Quo(normIn, scaleIn)
	normOut := new(big.Int).Mul(reserveOut, wad)
	normOut.Quo(normOut, scaleOut)

	parsedIn := new(big.Int).Mul(amountInWithFee, wad)
	parsedIn.Quo(parsedIn, scaleIn)

	newOut, err := GetY(parsedIn.Add(parsedIn, normIn), xy, normOut)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(normOut, newOut)
	if delta.Sign() < 0 {
		return nil, fmt.Errorf("%w: stable solver moved reserve the wrong way", model.ErrMathDomain)
	}

	out := delta.Mul(delta, scaleOut)
	out.Quo(out, wad)
	if out.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: output %s exceeds reserve %s", model.ErrInsufficientLiquidity, out, reserveOut)
	}
	return out, nil
}

// StableAmountIn uses the constant-product inverse, which over-estimates the input on a stable curve.
func StableAmountIn(amountOut, reserveIn, reserveOut *big.Int, fee uint64) (*big.Int, error) {
	return AmountIn(amountOut, reserveIn, reserveOut, fee)
}
