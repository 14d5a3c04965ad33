package indicator

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

// SMA calculates Simple Moving Average
// The window shrinks at the start, so the result has the input's length and
// index and sma[0] == prices[0].
func SMA(prices series.Series, period int) (series.Series, error) {
	if err := checkPeriod(period); err != nil {
		return series.Series{}, err
	}

	values := prices.Values()
	result := make([]float64, len(values))

	// Sum each window directly so period 1 is an exact identity
	for i := range values {
		lo := max(0, i-period+1)
		var sum float64
		for _, p := range values[lo : i+1] {
			sum += p
		}
		result[i] = sum / float64(i-lo+1)
	}

	return prices.WithValues(result)
}

// EMA calculates Exponential Moving Average
// Seeded with the first price; no warm-up window.
func EMA(prices series.Series, period int) (series.Series, error) {
	if err := checkPeriod(period); err != nil {
		return series.Series{}, err
	}

	values := prices.Values()
	result := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)

	for i, p := range values {
		if i == 0 {
			result[i] = p
			continue
		}
		result[i] = alpha*p + (1-alpha)*result[i-1]
	}

	return prices.WithValues(result)
}

func checkPeriod(period int) error {
	if period < 1 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("moving average period must be at least 1, got %d", period))
	}
	return nil
}
