package indexer

import (
	"fmt"

	"ammstate/internal/model"
)

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Resume returns the blocks still to fetch when pools were discovered at start,
// logs up to last have been applied and the chain head is head. A last of zero
// means nothing has been applied yet. ok is false when the pools are caught up.
func Resume(start, last, head uint64) (BlockRange, bool) {
	from := start
	if last > 0 && last >= from {
		from = last + 1
	}
	if from > head {
		return BlockRange{}, false
	}
	return BlockRange{From: from, To: head}, true
}

// SplitRange cuts [from, to] into consecutive ranges of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("%w: batch size must be greater than zero", model.ErrValidation)
	}
	if to < from {
		return nil, fmt.Errorf("%w: to block %d is before from block %d", model.ErrValidation, to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
