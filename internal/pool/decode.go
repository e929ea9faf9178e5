package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ammstate/internal/model"
)

// decodeLog parses the indexed topics of a log into a map keyed by argument name and
// unpacks its data. Every failure wraps model.ErrDecode.
func decodeLog(event abi.Event, log types.Log) (map[string]interface{}, []interface{}, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, nil, fmt.Errorf("%w: %s expects %d topics, got %d", model.ErrDecode, event.Name, len(indexed)+1, len(log.Topics))
	}
	topics := make(map[string]interface{}, len(indexed))
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(topics, indexed, log.Topics[1:]); err != nil {
			return nil, nil, fmt.Errorf("%w: parse %s topics: %v", model.ErrDecode, event.Name, err)
		}
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unpack %s: %v", model.ErrDecode, event.Name, err)
	}
	return topics, values, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// tickRange is the indexed part of Mint and Burn events.
type tickRange struct {
	Owner common.Address
	Lower int32
	Upper int32
}

// parseTickRange reads owner, lower and upper by position since forks name them differently
// (tickLower/tickUpper versus bottomTick/topTick).
func parseTickRange(event abi.Event, log types.Log) (tickRange, []interface{}, error) {
	topics, values, err := decodeLog(event, log)
	if err != nil {
		return tickRange{}, nil, err
	}
	indexed := indexedArguments(event.Inputs)
	if len(indexed) != 3 {
		return tickRange{}, nil, fmt.Errorf("%w: %s has %d indexed arguments", model.ErrDecode, event.Name, len(indexed))
	}
	owner, ok := topics[indexed[0].Name].(common.Address)
	if !ok {
		return tickRange{}, nil, fmt.Errorf("%w: %s owner type %T", model.ErrDecode, event.Name, topics[indexed[0].Name])
	}
	lowerBig, err := asBigInt(topics[indexed[1].Name])
	if err != nil {
		return tickRange{}, nil, err
	}
	upperBig, err := asBigInt(topics[indexed[2].Name])
	if err != nil {
		return tickRange{}, nil, err
	}
	lower, err := int24FromBig(lowerBig)
	if err != nil {
		return tickRange{}, nil, err
	}
	upper, err := int24FromBig(upperBig)
	if err != nil {
		return tickRange{}, nil, err
	}
	return tickRange{Owner: owner, Lower: lower, Upper: upper}, values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("%w: unsupported int type %T", model.ErrDecode, value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: missing int24", model.ErrDecode)
	}
	if value.Cmp(big.NewInt(-1<<23)) < 0 || value.Cmp(big.NewInt((1<<23)-1)) > 0 {
		return 0, fmt.Errorf("%w: int24 overflow: %s", model.ErrDecode, value.String())
	}
	return int32(value.Int64()), nil
}

// bigValues converts the first n unpacked values to big integers.
func bigValues(values []interface{}, n int) ([]*big.Int, error) {
	if len(values) < n {
		return nil, fmt.Errorf("%w: expected %d values, got %d", model.ErrDecode, n, len(values))
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		v, err := asBigInt(values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
