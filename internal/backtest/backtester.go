package backtest

import (
	"fmt"
	"math"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Backtester simulates a single-asset, long-only account driven by a signal
// series. It is not safe for concurrent use; run parallel backtests on
// separate instances.
type Backtester struct {
	initialCapital decimal.Decimal
	logger         *zap.Logger

	trades []Trade // accumulated across runs until Reset
	last   *Result // most recent successful run
}

// Option configures a Backtester
type Option func(*Backtester)

// WithLogger sets the logger used for run diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Backtester with the given starting cash
func New(initialCapital float64, opts ...Option) (*Backtester, error) {
	if !(initialCapital > 0) || math.IsInf(initialCapital, 0) {
		return nil, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("initial capital must be greater than 0, got %v", initialCapital))
	}

	b := &Backtester{
		initialCapital: decimal.NewFromFloat(initialCapital),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// InitialCapital returns the starting cash of every run
func (b *Backtester) InitialCapital() float64 {
	return b.initialCapital.InexactFloat64()
}

// Run simulates the account over prices, acting on signals (+1 buy, -1 sell,
// 0 hold). Every run starts from the initial capital; trades are appended to
// the instance's trade log, which only Reset clears. A negative or
// non-finite price on any tick, or a zero price where a trade would execute,
// fails the run with InvalidData and nothing is recorded.
func (b *Backtester) Run(prices, signals series.Series) (*Result, error) {
	pair, err := series.NewPair(prices, signals)
	if err != nil {
		return nil, err
	}

	acct := newAccount(b.initialCapital)
	values := make([]float64, pair.Len())
	positions := make([]float64, pair.Len())
	var trades []Trade

	for i := 0; i < pair.Len(); i++ {
		p, sig := pair.At(i)
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, core.WrapError(core.ErrInvalidData,
				fmt.Errorf("price %v at %s", p, prices.Time(i).Format("2006-01-02")))
		}
		price := decimal.NewFromFloat(p)

		action := core.ActionFromValue(sig)
		executes := (action == core.ActionBuy && acct.position == Flat) ||
			(action == core.ActionSell && acct.position == Long)
		if executes && !price.IsPositive() {
			return nil, core.WrapError(core.ErrInvalidData,
				fmt.Errorf("cannot %s at price %v on %s", action, p, prices.Time(i).Format("2006-01-02")))
		}

		switch action {
		case core.ActionBuy:
			if acct.position != Flat {
				break
			}
			shares := acct.buy(price)
			if shares.IsZero() {
				b.logger.Debug("buy skipped, cash below one share",
					zap.Time("time", prices.Time(i)),
					zap.Float64("price", p),
					zap.String("cash", acct.cash.String()),
				)
				break
			}
			trades = append(trades, Trade{
				Time:   prices.Time(i),
				Side:   core.ActionBuy,
				Price:  p,
				Shares: shares.InexactFloat64(),
			})
		case core.ActionSell:
			if acct.position != Long {
				break
			}
			shares := acct.sell(price)
			trades = append(trades, Trade{
				Time:   prices.Time(i),
				Side:   core.ActionSell,
				Price:  p,
				Shares: shares.InexactFloat64(),
			})
		}

		positions[i] = float64(acct.position)
		values[i] = acct.value(price).InexactFloat64()
	}

	valueSeries, err := prices.WithValues(values)
	if err != nil {
		return nil, err
	}
	positionSeries, err := prices.WithValues(positions)
	if err != nil {
		return nil, err
	}

	result := &Result{
		PortfolioValue: valueSeries,
		Position:       positionSeries,
		Trades:         trades,
	}
	b.trades = append(b.trades, trades...)
	b.last = result

	b.logger.Info("backtest run complete",
		zap.Int("bars", pair.Len()),
		zap.Int("trades", len(trades)),
		zap.Int("total_trades", len(b.trades)),
		zap.String("final_cash", acct.cash.String()),
	)

	return result, nil
}

// Trades returns a copy of the accumulated trade log
func (b *Backtester) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Reset clears the accumulated trade log and last result
func (b *Backtester) Reset() {
	b.trades = nil
	b.last = nil
}

// CalculateMetrics derives performance statistics from the latest run's
// value history and the accumulated trade log.
func (b *Backtester) CalculateMetrics(riskFreeRate float64) (Metrics, error) {
	if b.last == nil || b.last.PortfolioValue.Len() == 0 || len(b.trades) == 0 {
		return Metrics{}, core.WrapError(core.ErrNotReady,
			fmt.Errorf("run a backtest that produces trades first"))
	}
	if err := checkRiskFreeRate(riskFreeRate); err != nil {
		return Metrics{}, err
	}

	return ComputeMetrics(b.last.PortfolioValue, b.trades, riskFreeRate, b.InitialCapital()), nil
}

// checkRiskFreeRate rejects negative and non-finite annual rates
func checkRiskFreeRate(rate float64) error {
	if !(rate >= 0) || math.IsInf(rate, 0) {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("risk-free rate cannot be negative, got %v", rate))
	}
	return nil
}
