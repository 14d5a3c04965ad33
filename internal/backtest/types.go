package backtest

import (
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

// Position is the account's exposure after a tick
type Position int

const (
	Flat Position = 0
	Long Position = 1
)

// Trade is an immutable fill recorded by the simulator
type Trade struct {
	Time   time.Time   `json:"time" yaml:"time"`
	Side   core.Action `json:"side" yaml:"side"`
	Price  float64     `json:"price" yaml:"price"`
	Shares float64     `json:"shares" yaml:"shares"`
}

// Value returns the cash amount exchanged by the trade
func (t Trade) Value() float64 {
	return t.Price * t.Shares
}

// Result holds the output of one simulation run
type Result struct {
	PortfolioValue series.Series
	Position       series.Series // 0 flat, 1 long
	Trades         []Trade       // trades made during this run only
}

// RoundTrip is a Buy closed by the following Sell
type RoundTrip struct {
	Entry Trade `json:"entry" yaml:"entry"`
	Exit  Trade `json:"exit" yaml:"exit"`
}

// PnL returns the profit of the round trip in cash terms
func (r RoundTrip) PnL() float64 {
	return (r.Exit.Price - r.Entry.Price) * r.Entry.Shares
}

// IsWin returns true if the round trip was profitable
func (r RoundTrip) IsWin() bool {
	return r.PnL() > 0
}

// Return returns the percentage price change from entry to exit
func (r RoundTrip) Return() float64 {
	if r.Entry.Price == 0 {
		return 0
	}
	return (r.Exit.Price - r.Entry.Price) / r.Entry.Price
}

// Metrics holds performance statistics
type Metrics struct {
	FinalValue  float64 `json:"final_value" yaml:"final_value"`
	SharpeRatio float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"` // annualized, 252 periods
	MaxDrawdown float64 `json:"max_drawdown" yaml:"max_drawdown"` // fraction, <= 0
	WinRate     float64 `json:"win_rate" yaml:"win_rate"`         // fraction of round trips, 0..1
	TotalTrades int     `json:"total_trades" yaml:"total_trades"` // completed round trips
	TotalReturn float64 `json:"total_return" yaml:"total_return"` // final / initial - 1
}
