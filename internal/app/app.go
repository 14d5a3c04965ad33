// Package app wires configuration into the backtest service: strategies,
// market data, the runner, report archive and run history.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/config"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/metrics"
	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/storage/archive"
	"github.com/newthinker/macross/internal/storage/history"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/newthinker/macross/internal/strategy/ma_crossover"
	"go.uber.org/zap"
)

// App is the main application orchestrator
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	strategies *strategy.Engine
	provider   backtest.Provider
	metrics    *metrics.Registry
	runner     *backtest.Runner

	mu       sync.RWMutex
	archive  archive.Storage
	archiver *report.Archiver
	history  history.Store
}

// Option customizes App construction
type Option func(*App)

// WithProvider replaces the file-backed market data provider
func WithProvider(p backtest.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithArchive uses s for reports instead of the configured backend
func WithArchive(s archive.Storage) Option {
	return func(a *App) { a.archive = s }
}

// WithHistory uses s for run history instead of the configured database
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// New creates a new App instance. Persistence is not opened until
// OpenStorage is called, so one-off CLI runs leave no files behind.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	strategies := strategy.NewEngine(logger)
	strategies.Register(ma_crossover.Factory)

	a := &App{
		cfg:        cfg,
		logger:     logger,
		strategies: strategies,
		provider:   marketdata.NewFileProvider(cfg.Data.Dir),
		metrics:    metrics.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.runner = backtest.NewRunner(a.provider, strategies,
		backtest.WithRunnerLogger(logger),
		backtest.WithRecorder(a.metrics),
	)
	if a.archive != nil {
		a.archiver = report.NewArchiver(a.archive, logger)
	}
	return a
}

// Config returns the application configuration
func (a *App) Config() *config.Config { return a.cfg }

// Strategies returns the strategy registry
func (a *App) Strategies() *strategy.Engine { return a.strategies }

// Metrics returns the Prometheus registry
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// OpenStorage opens the report archive and run history configured in
// storage.*. Backends injected with options are kept.
func (a *App) OpenStorage(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.archive == nil {
		s, err := archive.Open(a.cfg.Storage.Archive.Options())
		if err != nil {
			return fmt.Errorf("opening report archive: %w", err)
		}
		a.archive = s
	}
	if a.archiver == nil {
		a.archiver = report.NewArchiver(a.archive, a.logger)
	}
	if a.history == nil {
		h, err := history.Open(ctx, a.cfg.Storage.History.DSN)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		a.history = h
	}

	a.logger.Info("storage opened",
		zap.String("archive", a.cfg.Storage.Archive.Type),
		zap.String("history", a.cfg.Storage.History.DSN),
	)
	return nil
}

// Close releases storage resources
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// NewRequest returns a backtest request for symbol filled with the
// configured strategy and account defaults
func (a *App) NewRequest(symbol string) backtest.Request {
	return backtest.Request{
		Symbol:         strings.ToUpper(symbol),
		Strategy:       a.cfg.Strategy.Name,
		Params:         a.cfg.Strategy.Params(),
		InitialCapital: a.cfg.Backtest.InitialCapital,
		RiskFreeRate:   a.cfg.Backtest.RiskFreeRate,
	}
}

// Execution is a completed backtest and where it was persisted
type Execution struct {
	Report      *report.Report `json:"report"`
	ArchivePath string         `json:"archive_path,omitempty"`
}

// Run executes req and builds its report without persisting anything
func (a *App) Run(ctx context.Context, req backtest.Request) (*report.Report, error) {
	out, err := a.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return report.New(out), nil
}

// Backtest executes req, archives the report and records the run in
// history when storage is open
func (a *App) Backtest(ctx context.Context, req backtest.Request) (*Execution, error) {
	rep, err := a.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	exec := &Execution{Report: rep}

	a.mu.RLock()
	archiver, store := a.archiver, a.history
	a.mu.RUnlock()

	if archiver != nil {
		if exec.ArchivePath, err = archiver.Save(ctx, rep); err != nil {
			return nil, fmt.Errorf("archiving report %s: %w", rep.ID, err)
		}
	}
	if store != nil {
		if err := store.Save(ctx, rep.HistoryRun(exec.ArchivePath)); err != nil {
			return nil, fmt.Errorf("recording run %s: %w", rep.ID, err)
		}
	}
	return exec, nil
}

// Sweep backtests every parameter combination in grid over symbol's history
func (a *App) Sweep(ctx context.Context, symbol, strategyName string, start, end time.Time, grid []map[string]any) ([]backtest.SweepResult, error) {
	bars, err := a.provider.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", symbol, err)
	}
	prices, err := marketdata.Closes(bars)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results, err := backtest.Sweep(ctx, a.strategies, strategyName, prices, grid, backtest.SweepOptions{
		InitialCapital: a.cfg.Backtest.InitialCapital,
		RiskFreeRate:   a.cfg.Backtest.RiskFreeRate,
		Workers:        a.cfg.Backtest.Workers,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("sweep finished",
		zap.String("symbol", symbol),
		zap.Int("combinations", len(grid)),
		zap.Int("bars", prices.Len()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return results, nil
}

// Runs lists recorded runs, newest first
func (a *App) Runs(ctx context.Context, filter history.ListFilter) ([]history.Run, error) {
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, filter)
}

// GetRun returns a recorded run
func (a *App) GetRun(ctx context.Context, id string) (*history.Run, error) {
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// Report loads the archived report of a recorded run
func (a *App) Report(ctx context.Context, runID string) (*report.Report, error) {
	run, err := a.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	archiver := a.archiver
	a.mu.RUnlock()
	if archiver == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("report archive is not open"))
	}
	return archiver.Load(ctx, run.Symbol, run.ID)
}

func (a *App) historyStore() (history.Store, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.history == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("run history is not open"))
	}
	return a.history, nil
}
