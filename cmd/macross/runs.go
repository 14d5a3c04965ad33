package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/newthinker/macross/internal/app"
	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/storage/history"
	"github.com/spf13/cobra"
)

var (
	runsLimit    int
	runsSymbol   string
	runsStrategy string
	runsShow     string
	runsFormat   string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded backtest runs",
	Long:  "List runs recorded by backtest --archive, newest first, or print one run's archived report.",
	Example: `  macross runs --symbol SPY --limit 10
  macross runs --show 0190f7c2-... --format yaml`,
	RunE: runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	f.StringVar(&runsSymbol, "symbol", "", "only runs of this symbol")
	f.StringVar(&runsStrategy, "strategy", "", "only runs of this strategy")
	f.StringVar(&runsShow, "show", "", "print the archived report of this run ID")
	f.StringVar(&runsFormat, "format", "text", "report format for --show: text, json or yaml")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := app.New(cfg, log)
	if err := a.OpenStorage(ctx); err != nil {
		return err
	}
	defer a.Close()

	if runsShow != "" {
		format, err := report.ParseFormat(runsFormat)
		if err != nil {
			return err
		}
		rep, err := a.Report(ctx, runsShow)
		if err != nil {
			return err
		}
		data, err := rep.Encode(format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	runs, err := a.Runs(ctx, history.ListFilter{
		Symbol:   runsSymbol,
		Strategy: runsStrategy,
		Limit:    runsLimit,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSYMBOL\tPARAMS\tFINAL VALUE\tSHARPE\tMAX DD\tTRADES")
	for _, r := range runs {
		created := r.CreatedAt.Local().Format("2006-01-02 15:04")
		if r.Metrics == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t-\t-\t-\t0\n", r.ID, created, r.Symbol, report.ParamString(r.Params))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f%%\t%d\n",
			r.ID, created, r.Symbol, report.ParamString(r.Params),
			r.Metrics.FinalValue, r.Metrics.SharpeRatio, r.Metrics.MaxDrawdown*100, r.Metrics.TotalTrades)
	}
	return tw.Flush()
}
