package series

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
)

// Pair holds two series guaranteed to share the same index.
type Pair struct {
	left  Series
	right Series
}

// NewPair checks alignment once so consumers can iterate both series by
// position without re-validating.
func NewPair(left, right Series) (Pair, error) {
	if left.Len() != right.Len() {
		return Pair{}, core.WrapError(core.ErrMisalignedSeries,
			fmt.Errorf("lengths differ: %d vs %d", left.Len(), right.Len()))
	}
	if !left.SameIndex(right) {
		return Pair{}, core.WrapError(core.ErrMisalignedSeries,
			fmt.Errorf("indexes differ"))
	}
	return Pair{left: left, right: right}, nil
}

// Len returns the shared length.
func (p Pair) Len() int {
	return p.left.Len()
}

// Left returns the first series.
func (p Pair) Left() Series {
	return p.left
}

// Right returns the second series.
func (p Pair) Right() Series {
	return p.right
}

// At returns both values at index i.
func (p Pair) At(i int) (left, right float64) {
	return p.left.values[i], p.right.values[i]
}
