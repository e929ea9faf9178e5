package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by the math engines, pools, discovery and the path registry.
// Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrMathDomain covers zero or invalid reserves and liquidity, ticks out of range
	// and a stable-curve solver that does not converge.
	ErrMathDomain = errors.New("math domain error")
	// ErrInsufficientLiquidity is returned when a requested output would drain the pool.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrDecode is returned when a recognized event carries a payload that does not decode.
	ErrDecode = errors.New("decode error")
	// ErrDiscoveryExhausted is returned when no known contract shape matched during fetch.
	ErrDiscoveryExhausted = errors.New("discovery exhausted")
	// ErrValidation is returned for rejected writes: bad paths, inverted tick ranges.
	ErrValidation = errors.New("validation error")

	ErrTokenMismatch = fmt.Errorf("%w: token not in pool", ErrMathDomain)
	ErrZeroAmount    = fmt.Errorf("%w: amount must be greater than zero", ErrMathDomain)
)
