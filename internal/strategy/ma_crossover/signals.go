package ma_crossover

import (
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

// GenerateSignals emits +1 where the fast average crosses above the slow one,
// -1 where it crosses below, and 0 elsewhere. A previous difference of exactly
// zero counts as being on either side, so 0 -> positive is a buy and
// 0 -> negative is a sell; a difference that stays at zero never fires.
// Index 0 has no previous difference and is always a hold.
func GenerateSignals(fast, slow series.Series) (series.Series, error) {
	pair, err := series.NewPair(fast, slow)
	if err != nil {
		return series.Series{}, err
	}

	signals := make([]float64, pair.Len())
	var prevDiff float64
	for i := 0; i < pair.Len(); i++ {
		f, s := pair.At(i)
		diff := f - s
		if i > 0 {
			signals[i] = float64(crossAction(prevDiff, diff))
		}
		prevDiff = diff
	}

	return fast.WithValues(signals)
}

func crossAction(prevDiff, diff float64) core.Action {
	switch {
	case prevDiff <= 0 && diff > 0:
		return core.ActionBuy
	case prevDiff >= 0 && diff < 0:
		return core.ActionSell
	default:
		return core.ActionHold
	}
}
