package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

var day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func scenario(t *testing.T) (*Backtester, *Result) {
	t.Helper()
	prices := series.Daily(day0, []float64{10, 12, 14, 13, 11})
	signals := series.Daily(day0, []float64{0, 1, 0, -1, 0})

	bt, err := New(100)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return bt, result
}

func TestBacktester_Run(t *testing.T) {
	_, result := scenario(t)

	// Buy on day 2 at 12: 8 shares, cash 4
	// Sell on day 4 at 13: cash = 4 + 8*13 = 108
	wantPositions := []float64{0, 1, 1, 0, 0}
	for i, want := range wantPositions {
		if result.Position.Value(i) != want {
			t.Errorf("position[%d] = %v, want %v", i, result.Position.Value(i), want)
		}
	}

	// value = cash + shares * price
	wantValues := []float64{100, 100, 116, 108, 108}
	for i, want := range wantValues {
		if result.PortfolioValue.Value(i) != want {
			t.Errorf("value[%d] = %v, want %v", i, result.PortfolioValue.Value(i), want)
		}
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Side != core.ActionBuy || buy.Price != 12 || buy.Shares != 8 || !buy.Time.Equal(day0.AddDate(0, 0, 1)) {
		t.Errorf("unexpected buy %+v", buy)
	}
	if sell.Side != core.ActionSell || sell.Price != 13 || sell.Shares != 8 || !sell.Time.Equal(day0.AddDate(0, 0, 3)) {
		t.Errorf("unexpected sell %+v", sell)
	}

	if !result.PortfolioValue.SameIndex(result.Position) {
		t.Error("value and position series must share the price index")
	}
}

func TestBacktester_Metrics(t *testing.T) {
	bt, _ := scenario(t)

	metrics, err := bt.CalculateMetrics(0)
	if err != nil {
		t.Fatalf("CalculateMetrics() error = %v", err)
	}

	if metrics.WinRate != 1.0 {
		t.Errorf("WinRate = %v, want 1.0", metrics.WinRate)
	}
	if metrics.FinalValue != 108 {
		t.Errorf("FinalValue = %v, want 108", metrics.FinalValue)
	}
	if metrics.TotalTrades != 1 {
		t.Errorf("TotalTrades = %v, want 1", metrics.TotalTrades)
	}
	if metrics.MaxDrawdown > 0 {
		t.Errorf("MaxDrawdown = %v, want <= 0", metrics.MaxDrawdown)
	}
	// Peak 116 -> 108
	if math.Abs(metrics.MaxDrawdown-(108.0-116.0)/116.0) > 1e-12 {
		t.Errorf("MaxDrawdown = %v, want %v", metrics.MaxDrawdown, (108.0-116.0)/116.0)
	}
	if math.IsNaN(metrics.SharpeRatio) || math.IsInf(metrics.SharpeRatio, 0) {
		t.Errorf("SharpeRatio should be finite, got %v", metrics.SharpeRatio)
	}
	if math.Abs(metrics.TotalReturn-0.08) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.08", metrics.TotalReturn)
	}
}

func TestNew_InvalidCapital(t *testing.T) {
	for _, capital := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New(capital)
		if !errors.Is(err, core.ErrInvalidParameter) {
			t.Errorf("New(%v): expected ErrInvalidParameter, got %v", capital, err)
		}
	}
}

func TestBacktester_Run_Misaligned(t *testing.T) {
	bt, _ := New(100)
	prices := series.Daily(day0, []float64{10, 12, 14})

	_, err := bt.Run(prices, series.Daily(day0, []float64{0, 1}))
	if !errors.Is(err, core.ErrMisalignedSeries) {
		t.Errorf("length mismatch: expected ErrMisalignedSeries, got %v", err)
	}

	_, err = bt.Run(prices, series.Daily(day0.AddDate(0, 0, 1), []float64{0, 1, 0}))
	if !errors.Is(err, core.ErrMisalignedSeries) {
		t.Errorf("index mismatch: expected ErrMisalignedSeries, got %v", err)
	}

	if len(bt.Trades()) != 0 {
		t.Error("failed run must not record trades")
	}
}

func TestBacktester_Run_InvalidPrice(t *testing.T) {
	bt, _ := New(100)
	prices := series.Daily(day0, []float64{10, math.NaN(), 14})
	signals := series.Daily(day0, []float64{1, 0, -1})

	_, err := bt.Run(prices, signals)
	if !errors.Is(err, core.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
	if len(bt.Trades()) != 0 {
		t.Error("failed run must not record trades")
	}
	if _, err := bt.CalculateMetrics(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("expected ErrNotReady after failed run, got %v", err)
	}
}

func TestBacktester_Run_ZeroPriceTrade(t *testing.T) {
	tests := []struct {
		name    string
		prices  []float64
		signals []float64
	}{
		{"buy at zero", []float64{10, 0, 12}, []float64{0, 1, 0}},
		{"sell at zero", []float64{10, 12, 0}, []float64{1, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt, _ := New(100)
			_, err := bt.Run(series.Daily(day0, tt.prices), series.Daily(day0, tt.signals))
			if !errors.Is(err, core.ErrInvalidData) {
				t.Errorf("expected ErrInvalidData, got %v", err)
			}
			if len(bt.Trades()) != 0 {
				t.Error("failed run must not record trades")
			}
		})
	}
}

func TestBacktester_Run_ZeroPriceWithoutTrade(t *testing.T) {
	bt, _ := New(100)
	// Zero on a hold tick and on a sell while flat: nothing executes there
	prices := series.Daily(day0, []float64{10, 0, 0, 20})
	signals := series.Daily(day0, []float64{0, 0, -1, 0})

	result, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i := 0; i < result.PortfolioValue.Len(); i++ {
		if result.PortfolioValue.Value(i) != 100 {
			t.Errorf("value[%d] = %v, want 100", i, result.PortfolioValue.Value(i))
		}
	}
}

func TestBacktester_Run_NegativePriceOnHold(t *testing.T) {
	bt, _ := New(100)
	_, err := bt.Run(series.Daily(day0, []float64{10, -1, 12}), series.Daily(day0, []float64{0, 0, 0}))
	if !errors.Is(err, core.ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

func TestBacktester_InsufficientCashSkipsBuy(t *testing.T) {
	bt, _ := New(5)
	prices := series.Daily(day0, []float64{10, 4, 6})
	signals := series.Daily(day0, []float64{1, 0, 0})

	result, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(result.Trades))
	}
	for i := 0; i < result.Position.Len(); i++ {
		if result.Position.Value(i) != 0 {
			t.Errorf("position[%d] should stay flat", i)
		}
		if result.PortfolioValue.Value(i) != 5 {
			t.Errorf("value[%d] = %v, want 5", i, result.PortfolioValue.Value(i))
		}
	}
}

func TestBacktester_IgnoresIncompatibleSignals(t *testing.T) {
	bt, _ := New(100)
	// Sell while flat, buy, buy while long, sell, sell while flat
	prices := series.Daily(day0, []float64{10, 10, 20, 25, 30})
	signals := series.Daily(day0, []float64{-1, 1, 1, -1, -1})

	result, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %+v", result.Trades)
	}
	if result.Trades[0].Side != core.ActionBuy || result.Trades[0].Shares != 10 {
		t.Errorf("unexpected first trade %+v", result.Trades[0])
	}
	if result.Trades[1].Side != core.ActionSell || result.Trades[1].Price != 25 {
		t.Errorf("unexpected second trade %+v", result.Trades[1])
	}
	if final, _ := result.PortfolioValue.Last(); final != 250 {
		t.Errorf("final value = %v, want 250", final)
	}
}

func TestBacktester_ValueIdentityAndAlternation(t *testing.T) {
	closes := []float64{50, 52, 49, 47, 51, 55, 58, 54, 50, 48, 53, 57, 60, 56, 52}
	sigs := []float64{0, 1, 0, -1, 1, 0, 0, -1, 0, 1, 0, 0, -1, 1, 0}
	prices := series.Daily(day0, closes)
	signals := series.Daily(day0, sigs)

	bt, _ := New(1000)
	result, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Replay the trade log to recover cash and shares after each tick
	cash, shares := 1000.0, 0.0
	next := 0
	for i := 0; i < prices.Len(); i++ {
		for next < len(result.Trades) && result.Trades[next].Time.Equal(prices.Time(i)) {
			tr := result.Trades[next]
			if tr.Side == core.ActionBuy {
				cash -= tr.Value()
				shares = tr.Shares
			} else {
				cash += tr.Value()
				shares = 0
			}
			next++
		}

		want := cash + shares*closes[i]
		if math.Abs(result.PortfolioValue.Value(i)-want) > 1e-9 {
			t.Errorf("value[%d] = %v, want %v", i, result.PortfolioValue.Value(i), want)
		}
		if cash < 0 {
			t.Errorf("cash went negative at %d", i)
		}
		if shares > 0 && result.Position.Value(i) != 1 {
			t.Errorf("holding shares but flat at %d", i)
		}
	}

	for i, tr := range result.Trades {
		want := core.ActionBuy
		if i%2 == 1 {
			want = core.ActionSell
		}
		if tr.Side != want {
			t.Errorf("trade %d side = %s, want %s", i, tr.Side, want)
		}
	}
}

func TestBacktester_TradesAccumulateUntilReset(t *testing.T) {
	bt, _ := scenario(t)
	prices := series.Daily(day0, []float64{10, 12, 14, 13, 11})
	signals := series.Daily(day0, []float64{0, 1, 0, -1, 0})

	second, err := bt.Run(prices, signals)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(second.Trades) != 2 {
		t.Errorf("result should hold this run's trades, got %d", len(second.Trades))
	}
	if len(bt.Trades()) != 4 {
		t.Errorf("instance should accumulate trades, got %d", len(bt.Trades()))
	}
	// Each run starts from the initial capital
	if final, _ := second.PortfolioValue.Last(); final != 108 {
		t.Errorf("second run final value = %v, want 108", final)
	}

	metrics, err := bt.CalculateMetrics(0)
	if err != nil {
		t.Fatalf("CalculateMetrics() error = %v", err)
	}
	if metrics.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2 accumulated round trips", metrics.TotalTrades)
	}

	bt.Reset()
	if len(bt.Trades()) != 0 {
		t.Error("Reset should clear trades")
	}
	if _, err := bt.CalculateMetrics(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("expected ErrNotReady after Reset, got %v", err)
	}
}

func TestBacktester_CalculateMetrics_NotReady(t *testing.T) {
	bt, _ := New(100)
	if _, err := bt.CalculateMetrics(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("expected ErrNotReady before run, got %v", err)
	}

	// A run with no trades is still not ready
	prices := series.Daily(day0, []float64{10, 11})
	if _, err := bt.Run(prices, series.Daily(day0, []float64{0, 0})); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := bt.CalculateMetrics(0); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("expected ErrNotReady without trades, got %v", err)
	}
}

func TestBacktester_CalculateMetrics_NegativeRiskFree(t *testing.T) {
	bt, _ := scenario(t)
	if _, err := bt.CalculateMetrics(-0.01); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestBacktester_OpenPositionExcludedFromTotals(t *testing.T) {
	bt, _ := New(100)
	prices := series.Daily(day0, []float64{10, 12, 11, 15})
	signals := series.Daily(day0, []float64{1, -1, 1, 0})

	if _, err := bt.Run(prices, signals); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	metrics, err := bt.CalculateMetrics(0)
	if err != nil {
		t.Fatalf("CalculateMetrics() error = %v", err)
	}

	if len(bt.Trades()) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(bt.Trades()))
	}
	if metrics.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", metrics.TotalTrades)
	}
	if metrics.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", metrics.WinRate)
	}
}
