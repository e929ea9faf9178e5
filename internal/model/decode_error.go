package model

import "errors"

// Reasons a log was rejected, as written to the decode error sink.
const (
	ReasonDecode     = "decode"
	ReasonValidation = "validation"
	ReasonMath       = "math"
	ReasonLiquidity  = "liquidity"
	ReasonOther      = "other"
)

// DecodeError records a log that could not be applied to its pool.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	PoolKind    string `json:"pool_kind,omitempty"`
	PoolSubType string `json:"pool_sub_type,omitempty"`
	Topic0      string `json:"topic0"`
	Event       string `json:"event,omitempty"`
	Reason      string `json:"reason"`
	Error       string `json:"error"`
}

// ReasonOf classifies err by the error kind it wraps.
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return ReasonDecode
	case errors.Is(err, ErrValidation):
		return ReasonValidation
	case errors.Is(err, ErrInsufficientLiquidity):
		return ReasonLiquidity
	case errors.Is(err, ErrMathDomain):
		return ReasonMath
	default:
		return ReasonOther
	}
}
