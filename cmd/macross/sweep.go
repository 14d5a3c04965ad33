package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/strategy/ma_crossover"
	"github.com/spf13/cobra"
)

var (
	sweepData   string
	sweepSymbol string
	sweepFrom   string
	sweepTo     string
	sweepFasts  []int
	sweepSlows  []int
	sweepMAType string
	sweepTop    int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest a grid of fast/slow periods",
	Long: `Backtest every fast/slow period pair with fast < slow over the same price
history and list the results by Sharpe ratio.`,
	Example: `  macross sweep --data prices.csv --fast 5,10,20 --slow 50,100,200`,
	RunE:    runSweep,
}

func init() {
	f := sweepCmd.Flags()
	f.StringVar(&sweepData, "data", "", "price file or directory (default: data.dir)")
	f.StringVar(&sweepSymbol, "symbol", "", "symbol to backtest (default: file name)")
	f.StringVar(&sweepFrom, "from", "", "start date YYYY-MM-DD")
	f.StringVar(&sweepTo, "to", "", "end date YYYY-MM-DD")
	f.IntSliceVar(&sweepFasts, "fast", []int{5, 10, 20}, "fast periods")
	f.IntSliceVar(&sweepSlows, "slow", []int{50, 100, 200}, "slow periods")
	f.StringVar(&sweepMAType, "ma-type", string(ma_crossover.MATypeSMA), "moving average type: sma or ema")
	f.IntVar(&sweepTop, "top", 0, "show only the best N results")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, symbol, err := newDataApp(cfg, log, sweepData, sweepSymbol)
	if err != nil {
		return err
	}
	defer a.Close()

	start, end, err := parseRange(sweepFrom, sweepTo)
	if err != nil {
		return err
	}

	grid := ma_crossover.Grid(sweepFasts, sweepSlows, ma_crossover.MAType(sweepMAType))
	if len(grid) == 0 {
		return fmt.Errorf("no fast/slow pair with fast < slow")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := a.Sweep(ctx, symbol, ma_crossover.Name, start, end, grid)
	if err != nil {
		return err
	}
	if sweepTop > 0 && sweepTop < len(results) {
		results = results[:sweepTop]
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMS\tFINAL VALUE\tRETURN\tSHARPE\tMAX DD\tWIN RATE\tTRADES")
	for _, r := range results {
		params := report.ParamString(r.Params)
		switch {
		case r.Err != nil:
			fmt.Fprintf(tw, "%s\terror: %v\n", params, r.Err)
		case r.Metrics == nil:
			fmt.Fprintf(tw, "%s\tno trades\n", params)
		default:
			m := r.Metrics
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f%%\t%.2f\t%.2f%%\t%.2f%%\t%d\n",
				params, m.FinalValue, m.TotalReturn*100, m.SharpeRatio, m.MaxDrawdown*100, m.WinRate*100, m.TotalTrades)
		}
	}
	return tw.Flush()
}
