package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 is deployed at the same address on most EVM chains.
var DefaultMulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const multicall3JSON = `[
  {
    "inputs": [
      {"internalType": "bool", "name": "requireSuccess", "type": "bool"},
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "tryAggregate",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	multicallOnce sync.Once
	multicallABI  abi.ABI
	multicallErr  error
)

// MulticallABI returns the parsed Multicall3 tryAggregate ABI.
func MulticallABI() (abi.ABI, error) {
	multicallOnce.Do(func() {
		multicallABI, multicallErr = abi.JSON(strings.NewReader(multicall3JSON))
	})
	return multicallABI, multicallErr
}

// Call is one entry of a batch.
type Call struct {
	Target   common.Address `abi:"target"`
	CallData []byte         `abi:"callData"`
}

// Result is the outcome of one call. A failed call has Success false and is not an error
// of the batch.
type Result struct {
	Success    bool   `abi:"success"`
	ReturnData []byte `abi:"returnData"`
}

// Multicall batches calls through a Multicall3 contract.
type Multicall struct {
	caller  ContractCaller
	address common.Address
}

// NewMulticall returns a batcher. A zero address selects DefaultMulticallAddress.
func NewMulticall(caller ContractCaller, address common.Address) *Multicall {
	if address == (common.Address{}) {
		address = DefaultMulticallAddress
	}
	return &Multicall{caller: caller, address: address}
}

// TryAggregate executes calls at blockNumber (nil for latest) and returns one Result per call
// in order.
func (m *Multicall) TryAggregate(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	parsed, err := MulticallABI()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	input, err := parsed.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	to := m.address
	output, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	var results []Result
	if err := parsed.UnpackIntoInterface(&results, "tryAggregate", output); err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("tryAggregate returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}
