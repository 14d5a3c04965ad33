package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/app"
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/config"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestData    string
	backtestSymbol  string
	backtestFrom    string
	backtestTo      string
	backtestFast    int
	backtestSlow    int
	backtestMAType  string
	backtestCapital float64
	backtestRF      float64
	backtestFormat  string
	backtestArchive bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the crossover strategy over price history",
	Long: `Run the moving-average crossover strategy against historical closes and
show final value, Sharpe ratio, max drawdown and win rate.

--data accepts a CSV or Parquet file, or a directory holding <SYMBOL>.csv or
<SYMBOL>.parquet files. Unset flags fall back to the configuration.`,
	Example: `  macross backtest --data prices.csv --fast 20 --slow 50
  macross backtest --symbol SPY --from 2020-01-01 --to 2023-12-31 --format json --archive`,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&backtestData, "data", "", "price file or directory (default: data.dir)")
	f.StringVar(&backtestSymbol, "symbol", "", "symbol to backtest (default: file name)")
	f.StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD")
	f.StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD")
	f.IntVar(&backtestFast, "fast", 0, "fast moving average period")
	f.IntVar(&backtestSlow, "slow", 0, "slow moving average period")
	f.StringVar(&backtestMAType, "ma-type", "", "moving average type: sma or ema")
	f.Float64Var(&backtestCapital, "capital", 0, "initial capital")
	f.Float64Var(&backtestRF, "rf", 0, "annual risk-free rate")
	f.StringVar(&backtestFormat, "format", "text", "output format: text, json or yaml")
	f.BoolVar(&backtestArchive, "archive", false, "archive the report and record the run in history")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(backtestFormat)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, symbol, err := newDataApp(cfg, log, backtestData, backtestSymbol)
	if err != nil {
		return err
	}
	defer a.Close()

	req := a.NewRequest(symbol)
	if req.Start, req.End, err = parseRange(backtestFrom, backtestTo); err != nil {
		return err
	}
	applyStrategyFlags(cmd, &req)
	if cmd.Flags().Changed("capital") {
		req.InitialCapital = backtestCapital
	}
	if cmd.Flags().Changed("rf") {
		req.RiskFreeRate = backtestRF
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var rep *report.Report
	if backtestArchive {
		if err := a.OpenStorage(ctx); err != nil {
			return err
		}
		exec, err := a.Backtest(ctx, req)
		if err != nil {
			return err
		}
		rep = exec.Report
		log.Info("report archived", zap.String("path", exec.ArchivePath), zap.String("id", rep.ID))
	} else {
		if rep, err = a.Run(ctx, req); err != nil {
			return err
		}
	}

	data, err := rep.Encode(format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// newDataApp builds the app over the --data flag. A single file is served
// as-is under symbol, defaulting to the file's base name; a directory (or
// the configured data dir) is looked up per symbol.
func newDataApp(cfg *config.Config, log *zap.Logger, data, symbol string) (*app.App, string, error) {
	if data == "" {
		data = cfg.Data.Dir
	}

	info, err := os.Stat(data)
	if err != nil {
		return nil, "", fmt.Errorf("price data %s: %w", data, err)
	}
	if info.IsDir() {
		if symbol == "" {
			return nil, "", fmt.Errorf("--symbol is required when --data is a directory")
		}
		cfg.Data.Dir = data
		return app.New(cfg, log), strings.ToUpper(symbol), nil
	}

	if symbol == "" {
		base := info.Name()
		symbol = strings.TrimSuffix(base, filepath.Ext(base))
	}
	symbol = strings.ToUpper(symbol)
	bars, err := marketdata.LoadFile(data, symbol)
	if err != nil {
		return nil, "", err
	}
	return app.New(cfg, log, app.WithProvider(marketdata.NewStaticProvider(bars))), symbol, nil
}

func parseRange(from, to string) (start, end time.Time, err error) {
	if from != "" {
		if start, err = time.Parse(marketdata.DateLayout, from); err != nil {
			return start, end, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse(marketdata.DateLayout, to); err != nil {
			return start, end, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

// applyStrategyFlags overrides the configured strategy parameters with the
// flags the user set
func applyStrategyFlags(cmd *cobra.Command, req *backtest.Request) {
	params := make(map[string]any, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	if cmd.Flags().Changed("fast") {
		params["fast_period"] = backtestFast
	}
	if cmd.Flags().Changed("slow") {
		params["slow_period"] = backtestSlow
	}
	if cmd.Flags().Changed("ma-type") {
		params["ma_type"] = backtestMAType
	}
	req.Params = params
}
