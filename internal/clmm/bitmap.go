package clmm

import (
	"math/big"

	"ammstate/internal/clmm/tickmath"
)

// SecondLayerOffset shifts signed tick-table word indices into the unsigned range of the
// Algebra tick tree.
const SecondLayerOffset = 3466

// TickToWord returns the bitmap word holding tick: floor(tick/spacing) >> 8.
func TickToWord(tick, spacing int32) int16 {
	return int16(floorDiv(tick, spacing) >> 8)
}

// WordRange returns the first and last bitmap words that can hold a valid tick.
func WordRange(spacing int32) (int16, int16) {
	return TickToWord(tickmath.MinTick, spacing), TickToWord(tickmath.MaxTick, spacing)
}

// TicksFromWord lists the ticks whose bits are set in a flat bitmap word.
func TicksFromWord(word int16, bitmap *big.Int, spacing int32) []int32 {
	if bitmap == nil || bitmap.Sign() == 0 {
		return nil
	}
	var ticks []int32
	for bit := 0; bit < 256; bit++ {
		if bitmap.Bit(bit) == 0 {
			continue
		}
		tick := (int32(word)*256 + int32(bit)) * spacing
		if tick < tickmath.MinTick || tick > tickmath.MaxTick {
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// TreeSecondLayerIndices returns the second-layer words flagged in the tree root.
func TreeSecondLayerIndices(root uint32) []int16 {
	var out []int16
	for bit := 0; bit < 32; bit++ {
		if root&(1<<uint(bit)) != 0 {
			out = append(out, int16(bit))
		}
	}
	return out
}

// TreeLeafIndices returns the (offset) leaf indices flagged in a second-layer word.
func TreeLeafIndices(secondIndex int16, bitmap *big.Int) []int32 {
	if bitmap == nil {
		return nil
	}
	var out []int32
	for bit := 0; bit < 256; bit++ {
		if bitmap.Bit(bit) == 1 {
			out = append(out, int32(secondIndex)*256+int32(bit))
		}
	}
	return out
}

// TableIndex converts an offset leaf index into the signed tickTable word index.
func TableIndex(leafIndex int32) int16 {
	return int16(leafIndex - SecondLayerOffset)
}

// TicksFromLeaf lists the ticks set in the tick-table word of leafIndex. Tree ticks are
// stored uncompressed, so no spacing is applied.
func TicksFromLeaf(leafIndex int32, bitmap *big.Int) []int32 {
	if bitmap == nil || bitmap.Sign() == 0 {
		return nil
	}
	tableIdx := leafIndex - SecondLayerOffset
	var ticks []int32
	for bit := 0; bit < 256; bit++ {
		if bitmap.Bit(bit) == 0 {
			continue
		}
		tick := tableIdx*256 + int32(bit)
		if tick < tickmath.MinTick || tick > tickmath.MaxTick {
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks
}
