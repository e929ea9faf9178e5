package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"ammstate/internal/clmm"
	"ammstate/internal/pool"
)

// FetchTicks lists the initialized ticks of a pool and loads their liquidity. Uniswap-style
// pools keep a flat tickBitmap, the Algebra fee forks a flat tickTable, and Algebra
// integral pools a three-level tick tree.
func (f *Fetcher) FetchTicks(ctx context.Context, block *big.Int, address common.Address, subType pool.SubType, spacing int32) ([]clmm.Tick, error) {
	var (
		indices []int32
		err     error
	)
	switch subType {
	case pool.SubTypeAlgebraV3:
		indices, err = f.treeTickIndices(ctx, block, address)
	case pool.SubTypeAlgebraTwoSideFee, pool.SubTypeAlgebraFeeInState:
		indices, err = f.flatTickIndices(ctx, block, address, algebraPoolABI, "tickTable", spacing)
	default:
		indices, err = f.flatTickIndices(ctx, block, address, v3PoolABI, "tickBitmap", spacing)
	}
	if err != nil {
		return nil, err
	}
	return f.tickLiquidity(ctx, block, address, indices)
}

func (f *Fetcher) flatTickIndices(ctx context.Context, block *big.Int, address common.Address, bitmapABI *lazyABI, method string, spacing int32) ([]int32, error) {
	minWord, maxWord := clmm.WordRange(spacing)
	words := make([]int16, 0, int(maxWord)-int(minWord)+1)
	calls := make([]call, 0, cap(words))
	for w := int(minWord); w <= int(maxWord); w++ {
		words = append(words, int16(w))
		calls = append(calls, call{target: address, abi: bitmapABI, method: method, args: []interface{}{int16(w)}})
	}
	replies, err := f.batch(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	var indices []int32
	for i, r := range replies {
		bitmap, ok := replyBig(r)
		if !ok {
			return nil, fmt.Errorf("%s(%d) failed", method, words[i])
		}
		indices = append(indices, clmm.TicksFromWord(words[i], bitmap, spacing)...)
	}
	return indices, nil
}

// treeTickIndices descends only the branches with set bits: root, second layer, leaves.
func (f *Fetcher) treeTickIndices(ctx context.Context, block *big.Int, address common.Address) ([]int32, error) {
	replies, err := f.batch(ctx, block, []call{{target: address, abi: algebraPoolABI, method: "tickTreeRoot"}})
	if err != nil {
		return nil, err
	}
	rootBig, ok := replyBig(replies[0])
	if !ok {
		return nil, fmt.Errorf("tickTreeRoot failed")
	}
	root := uint32(rootBig.Uint64())
	if root == 0 {
		return nil, nil
	}

	seconds := clmm.TreeSecondLayerIndices(root)
	calls := make([]call, len(seconds))
	for i, idx := range seconds {
		calls[i] = call{target: address, abi: algebraPoolABI, method: "tickTreeSecondLayer", args: []interface{}{idx}}
	}
	replies, err = f.batch(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	var leaves []int32
	for i, r := range replies {
		bitmap, ok := replyBig(r)
		if !ok {
			return nil, fmt.Errorf("tickTreeSecondLayer(%d) failed", seconds[i])
		}
		leaves = append(leaves, clmm.TreeLeafIndices(seconds[i], bitmap)...)
	}
	if len(leaves) == 0 {
		return nil, nil
	}

	calls = make([]call, len(leaves))
	for i, leaf := range leaves {
		calls[i] = call{target: address, abi: algebraPoolABI, method: "tickTable", args: []interface{}{clmm.TableIndex(leaf)}}
	}
	replies, err = f.batch(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	var indices []int32
	for i, r := range replies {
		bitmap, ok := replyBig(r)
		if !ok {
			return nil, fmt.Errorf("tickTable(%d) failed", clmm.TableIndex(leaves[i]))
		}
		indices = append(indices, clmm.TicksFromLeaf(leaves[i], bitmap)...)
	}
	return indices, nil
}

// tickLiquidity reads ticks(i) for every index. All forks lead with the gross (or total)
// liquidity word followed by the signed net (or delta) word.
func (f *Fetcher) tickLiquidity(ctx context.Context, block *big.Int, address common.Address, indices []int32) ([]clmm.Tick, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	calls := make([]call, len(indices))
	for i, idx := range indices {
		calls[i] = call{target: address, abi: v3PoolABI, method: "ticks", args: []interface{}{big.NewInt(int64(idx))}}
	}
	replies, err := f.batch(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	ticks := make([]clmm.Tick, 0, len(indices))
	for i, r := range replies {
		if !r.ok || len(r.data) < 2*wordSize {
			return nil, fmt.Errorf("ticks(%d) failed", indices[i])
		}
		gross := new(big.Int).SetBytes(r.data[:wordSize])
		net := math.S256(new(big.Int).SetBytes(r.data[wordSize : 2*wordSize]))
		if gross.Sign() == 0 {
			continue
		}
		ticks = append(ticks, clmm.Tick{Index: indices[i], LiquidityNet: net, LiquidityGross: gross})
	}
	return ticks, nil
}
