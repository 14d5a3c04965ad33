package backtest

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
	"github.com/newthinker/macross/internal/strategy"
)

// SweepOptions configures a parameter sweep
type SweepOptions struct {
	InitialCapital float64
	RiskFreeRate   float64
	Workers        int // defaults to GOMAXPROCS
}

// SweepResult is the outcome of one parameter combination. Err is set when
// the combination could not be evaluated; Metrics is nil when it traded
// nothing.
type SweepResult struct {
	Params      map[string]any `json:"params" yaml:"params"`
	Description string         `json:"description" yaml:"description"`
	Metrics     *Metrics       `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Err         error          `json:"-" yaml:"-"`
}

// Sweep backtests every parameter combination in grid against prices, one
// Backtester per combination on a bounded worker pool. Results are ordered by
// Sharpe ratio, best first; combinations without metrics sort last.
func Sweep(ctx context.Context, engine *strategy.Engine, strategyName string, prices series.Series, grid []map[string]any, opts SweepOptions) ([]SweepResult, error) {
	if _, err := New(opts.InitialCapital); err != nil {
		return nil, err
	}
	if err := checkRiskFreeRate(opts.RiskFreeRate); err != nil {
		return nil, err
	}
	if !engine.Has(strategyName) {
		return nil, core.WrapError(core.ErrStrategyNotFound, errors.New(strategyName))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(grid) {
		workers = len(grid)
	}

	results := make([]SweepResult, len(grid))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = evaluate(engine, strategyName, prices, grid[i], opts)
			}
		}()
	}

feed:
	for i := range grid {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Metrics, results[j].Metrics
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.SharpeRatio > b.SharpeRatio
		}
	})
	return results, nil
}

func evaluate(engine *strategy.Engine, name string, prices series.Series, params map[string]any, opts SweepOptions) SweepResult {
	res := SweepResult{Params: params}

	strat, err := engine.Build(name, strategy.Config{Params: params})
	if err != nil {
		res.Err = err
		return res
	}
	res.Description = strat.Description()

	signals, err := strat.Signals(prices)
	if err != nil {
		res.Err = err
		return res
	}

	bt, err := New(opts.InitialCapital)
	if err != nil {
		res.Err = err
		return res
	}
	if _, err := bt.Run(prices, signals); err != nil {
		res.Err = err
		return res
	}

	m, err := bt.CalculateMetrics(opts.RiskFreeRate)
	if err != nil {
		if !errors.Is(err, core.ErrNotReady) {
			res.Err = err
		}
		return res
	}
	res.Metrics = &m
	return res
}
