package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"github.com/newthinker/macross/internal/marketdata/yahoo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importSymbol string
	importSource string
	importFrom   string
	importTo     string
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv | symbol>",
	Short: "Store price history as Parquet in the data directory",
	Long: `Validate price history and merge its bars into <data.dir>/<SYMBOL>.parquet.
Bars with a timestamp already stored are replaced.

With --source csv (the default) the argument is a CSV file. With --source
yahoo the argument is a symbol whose daily bars are downloaded.`,
	Example: `  macross import prices/spy.csv
  macross import SPY --source yahoo --from 2015-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importSymbol, "symbol", "", "symbol to store under (default: file name)")
	f.StringVar(&importSource, "source", "csv", "where bars come from: csv or yahoo")
	f.StringVar(&importFrom, "from", "", "start date YYYY-MM-DD (yahoo)")
	f.StringVar(&importTo, "to", "", "end date YYYY-MM-DD (yahoo)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		symbol string
		bars   []core.Bar
	)
	switch importSource {
	case "csv":
		path := args[0]
		symbol = importSymbol
		if symbol == "" {
			base := filepath.Base(path)
			symbol = strings.TrimSuffix(base, filepath.Ext(base))
		}
		symbol = strings.ToUpper(symbol)
		if bars, err = marketdata.LoadCSV(path, symbol); err != nil {
			return err
		}
	case "yahoo":
		symbol = strings.ToUpper(args[0])
		start, end, err := parseRange(importFrom, importTo)
		if err != nil {
			return err
		}
		if bars, err = yahoo.New(yahoo.WithLogger(log)).FetchHistory(ctx, symbol, start, end); err != nil {
			return err
		}
		if importSymbol != "" {
			symbol = strings.ToUpper(importSymbol)
		}
	default:
		return fmt.Errorf("unknown source %q (want csv or yahoo)", importSource)
	}

	if err := marketdata.NewParquetStore(cfg.Data.Dir).WriteBars(ctx, symbol, bars); err != nil {
		return fmt.Errorf("storing %s: %w", symbol, err)
	}

	log.Info("bars imported",
		zap.String("symbol", symbol),
		zap.String("source", importSource),
		zap.Int("bars", len(bars)),
		zap.String("dir", cfg.Data.Dir),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bars for %s\n", len(bars), symbol)
	return nil
}
