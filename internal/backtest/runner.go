package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/series"
	"github.com/newthinker/macross/internal/strategy"
	"go.uber.org/zap"
)

// Provider defines the interface for fetching historical daily bars
type Provider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error)
}

// Recorder receives backtest telemetry. *metrics.Registry satisfies it.
type Recorder interface {
	RecordBacktest(status string, duration time.Duration)
	RecordSignal(strategy, action string)
	RecordTrade(side string)
}

// Request describes one backtest over a symbol's history
type Request struct {
	Symbol         string         `json:"symbol" yaml:"symbol"`
	Strategy       string         `json:"strategy" yaml:"strategy"`
	Params         map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Start          time.Time      `json:"start" yaml:"start"`
	End            time.Time      `json:"end" yaml:"end"`
	InitialCapital float64        `json:"initial_capital" yaml:"initial_capital"`
	RiskFreeRate   float64        `json:"risk_free_rate" yaml:"risk_free_rate"`
}

// Outcome is everything a completed backtest produced. Metrics is nil when
// the run made no trades.
type Outcome struct {
	Request     Request
	Description string
	Prices      series.Series
	Signals     series.Series
	Overlays    map[string]series.Series // indicator lines, when the strategy exports them
	Result      *Result
	Metrics     *Metrics
	Duration    time.Duration
}

// Runner executes backtest requests end to end: fetch, signal, simulate,
// measure.
type Runner struct {
	provider Provider
	engine   *strategy.Engine
	logger   *zap.Logger
	recorder Recorder
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// NewRunner creates a Runner over provider and the strategies in engine
func NewRunner(provider Provider, engine *strategy.Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider: provider,
		engine:   engine,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	out, err := r.run(ctx, req)
	elapsed := time.Since(started)

	status := "success"
	if err != nil {
		status = "error"
		r.logger.Warn("backtest failed",
			zap.String("symbol", req.Symbol),
			zap.String("strategy", req.Strategy),
			zap.Error(err),
		)
	} else {
		out.Duration = elapsed
	}
	if r.recorder != nil {
		r.recorder.RecordBacktest(status, elapsed)
	}
	return out, err
}

func (r *Runner) run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Symbol == "" {
		return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("symbol is required"))
	}
	if err := checkRiskFreeRate(req.RiskFreeRate); err != nil {
		return nil, err
	}
	if !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("end %s is before start %s", req.End.Format(marketdata.DateLayout), req.Start.Format(marketdata.DateLayout)))
	}

	strat, err := r.engine.Build(req.Strategy, strategy.Config{Params: req.Params})
	if err != nil {
		return nil, err
	}

	bars, err := r.provider.FetchHistory(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", req.Symbol, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prices, err := marketdata.Closes(bars)
	if err != nil {
		return nil, err
	}

	signals, err := strat.Signals(prices)
	if err != nil {
		return nil, err
	}

	bt, err := New(req.InitialCapital, WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	result, err := bt.Run(prices, signals)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Request:     req,
		Description: strat.Description(),
		Prices:      prices,
		Signals:     signals,
		Result:      result,
	}
	if o, ok := strat.(strategy.Overlayer); ok {
		if out.Overlays, err = o.Overlays(prices); err != nil {
			return nil, err
		}
	}
	r.record(strat.Name(), signals, result.Trades)

	m, err := bt.CalculateMetrics(req.RiskFreeRate)
	switch {
	case err == nil:
		out.Metrics = &m
	case errors.Is(err, core.ErrNotReady):
		r.logger.Info("backtest produced no trades",
			zap.String("symbol", req.Symbol),
			zap.Int("bars", prices.Len()),
		)
	default:
		return nil, err
	}

	fields := []zap.Field{
		zap.String("symbol", req.Symbol),
		zap.String("strategy", out.Description),
		zap.Int("bars", prices.Len()),
		zap.Int("trades", len(result.Trades)),
	}
	if out.Metrics != nil {
		fields = append(fields,
			zap.Float64("final_value", out.Metrics.FinalValue),
			zap.Float64("sharpe", out.Metrics.SharpeRatio),
		)
	}
	r.logger.Info("backtest finished", fields...)

	return out, nil
}

func (r *Runner) record(strategyName string, signals series.Series, trades []Trade) {
	if r.recorder == nil {
		return
	}
	for _, v := range signals.Values() {
		if a := core.ActionFromValue(v); a != core.ActionHold {
			r.recorder.RecordSignal(strategyName, a.String())
		}
	}
	for _, t := range trades {
		r.recorder.RecordTrade(t.Side.String())
	}
}
