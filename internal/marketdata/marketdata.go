// Package marketdata loads daily price bars from CSV and Parquet files and
// validates them before they reach the backtester.
package marketdata

import (
	"fmt"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

// DateLayout is the date format used in CSV files and CLI flags
const DateLayout = "2006-01-02"

// Validate checks bars for the conditions the backtester relies on:
// non-empty, non-negative prices, high >= low, strictly increasing dates.
func Validate(bars []core.Bar) error {
	if len(bars) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("no bars"))
	}
	for i, b := range bars {
		if !b.IsValid() {
			return core.WrapError(core.ErrInvalidData,
				fmt.Errorf("bar %s: negative price or high below low", b.Time.Format(DateLayout)))
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return core.WrapError(core.ErrInvalidData,
				fmt.Errorf("bar %s is not after %s", b.Time.Format(DateLayout), bars[i-1].Time.Format(DateLayout)))
		}
	}
	return nil
}

// Closes returns the close prices of bars as a series
func Closes(bars []core.Bar) (series.Series, error) {
	times := make([]time.Time, len(bars))
	values := make([]float64, len(bars))
	for i, b := range bars {
		times[i] = b.Time
		values[i] = b.Close
	}
	return series.New(times, values)
}

// Between returns the bars within [start, end]. A zero bound is open.
func Between(bars []core.Bar, start, end time.Time) []core.Bar {
	var out []core.Bar
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
