package backtest

import (
	"math"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

const (
	// TradingDaysPerYear annualizes daily statistics
	TradingDaysPerYear = 252

	// sharpeEpsilon keeps the Sharpe ratio finite when returns are constant
	sharpeEpsilon = 1e-9
)

// ComputeMetrics derives the summary statistics for a value history and the
// trade log that produced it
func ComputeMetrics(values series.Series, trades []Trade, riskFreeRate, initialCapital float64) Metrics {
	vals := values.Values()
	trips := RoundTrips(trades)

	var final, totalReturn float64
	if len(vals) > 0 {
		final = vals[len(vals)-1]
	}
	if initialCapital > 0 {
		totalReturn = final/initialCapital - 1
	}

	return Metrics{
		FinalValue:  final,
		SharpeRatio: SharpeRatio(Returns(vals), riskFreeRate),
		MaxDrawdown: MaxDrawdown(vals),
		WinRate:     WinRate(trips),
		TotalTrades: len(trips),
		TotalReturn: totalReturn,
	}
}

// Returns computes period returns value[t]/value[t-1] - 1. The first
// observation has no prior value and gets a return of 0, as does any period
// following a zero value.
func Returns(values []float64) []float64 {
	returns := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns[i] = values[i]/values[i-1] - 1
	}
	return returns
}

// SharpeRatio computes the annualized Sharpe ratio of period returns against
// an annual risk-free rate:
//
//	sqrt(252) * mean(excess) / (stddev(excess) + 1e-9)
//
// stddev is the sample (n-1) standard deviation. With fewer than two
// observations there is no dispersion to measure and the ratio is 0.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	perPeriod := riskFreeRate / TradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - perPeriod
	}

	avg := mean(excess)
	std := sampleStdDev(excess, avg)

	return math.Sqrt(TradingDaysPerYear) * avg / (std + sharpeEpsilon)
}

// MaxDrawdown returns the largest peak-to-trough decline as a non-positive
// fraction: min over t of (value[t] - peak[t]) / peak[t].
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var maxDD float64
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// RoundTrips pairs trades by following position transitions: a Buy opens a
// position and the next Sell closes it. A trailing Buy with no Sell is left
// out. A Sell with nothing open is ignored, and a Buy while a position is
// already open replaces the open entry (this only happens when trade logs
// from separate runs are concatenated).
func RoundTrips(trades []Trade) []RoundTrip {
	var trips []RoundTrip
	var open *Trade

	for i := range trades {
		t := trades[i]
		switch t.Side {
		case core.ActionBuy:
			open = &t
		case core.ActionSell:
			if open != nil {
				trips = append(trips, RoundTrip{Entry: *open, Exit: t})
				open = nil
			}
		}
	}

	return trips
}

// WinRate returns the fraction of profitable round trips, 0 when there are
// none
func WinRate(trips []RoundTrip) float64 {
	if len(trips) == 0 {
		return 0
	}

	var wins int
	for _, t := range trips {
		if t.IsWin() {
			wins++
		}
	}
	return float64(wins) / float64(len(trips))
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)-1))
}
