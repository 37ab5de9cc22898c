package indexer

import (
	"fmt"
	"iter"
)

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Len returns the number of blocks in the range, or 0 when From > To.
func (r BlockRange) Len() uint64 {
	if r.From > r.To {
		return 0
	}
	return r.To - r.From + 1
}

// Batches lazily splits total into contiguous sub-ranges of batchSize blocks.
// The last sub-range is clipped to total.To. An inverted range or a zero batch
// size yields nothing.
func Batches(total BlockRange, batchSize uint64) iter.Seq[BlockRange] {
	return func(yield func(BlockRange) bool) {
		if batchSize == 0 || total.From > total.To {
			return
		}

		start := total.From
		for {
			var end uint64
			if total.To-start <= batchSize-1 {
				end = total.To
			} else {
				end = start + batchSize - 1
			}
			if !yield(BlockRange{From: start, To: end}) {
				return
			}
			if end == total.To {
				return
			}
			start = end + 1
		}
	}
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}

	ranges := make([]BlockRange, 0)
	for r := range Batches(BlockRange{From: from, To: to}, batchSize) {
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// LookbackWindow returns [max(0, latest-lookback), latest].
func LookbackWindow(latest, lookback uint64) BlockRange {
	from := uint64(0)
	if latest > lookback {
		from = latest - lookback
	}
	return BlockRange{From: from, To: latest}
}
