package scan

import (
	"fmt"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// Range is an inclusive block range.
type Range struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks the range spans.
func (r Range) Blocks() uint64 {
	return r.To - r.From + 1
}

// Chunks splits [from, to] into ordered sub-ranges of at most maxSpan blocks
// each, covering the range exactly with no gaps or overlaps. The poller and
// the backfill runner share this so they behave identically under large
// ranges.
func Chunks(from, to, maxSpan uint64) ([]Range, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from %d > to %d", domain.ErrInvalidRange, from, to)
	}
	if maxSpan == 0 {
		return nil, fmt.Errorf("%w: max span must be positive", domain.ErrInvalidRange)
	}

	var chunks []Range
	for start := from; ; {
		end := start + maxSpan - 1
		if end < start || end > to { // first clause guards uint64 wrap
			end = to
		}
		chunks = append(chunks, Range{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return chunks, nil
}
