// Package report turns backtest outcomes into exportable documents and
// archives them.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
)

// Format is a report encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", core.WrapError(core.ErrInvalidParameter, fmt.Errorf("unknown report format %q", s))
	}
}

// Point is one bar of the equity curve with the series a chart needs
type Point struct {
	Time     time.Time          `json:"time" yaml:"time"`
	Close    float64            `json:"close" yaml:"close"`
	Signal   core.Action        `json:"signal" yaml:"signal"`
	Position int                `json:"position" yaml:"position"`
	Value    float64            `json:"value" yaml:"value"`
	Overlays map[string]float64 `json:"overlays,omitempty" yaml:"overlays,omitempty"`
}

// Report is the exported record of a single backtest
type Report struct {
	ID             string               `json:"id" yaml:"id"`
	CreatedAt      time.Time            `json:"created_at" yaml:"created_at"`
	Symbol         string               `json:"symbol" yaml:"symbol"`
	Strategy       string               `json:"strategy" yaml:"strategy"`
	Description    string               `json:"description" yaml:"description"`
	Params         map[string]any       `json:"params,omitempty" yaml:"params,omitempty"`
	Start          time.Time            `json:"start" yaml:"start"`
	End            time.Time            `json:"end" yaml:"end"`
	Bars           int                  `json:"bars" yaml:"bars"`
	InitialCapital float64              `json:"initial_capital" yaml:"initial_capital"`
	RiskFreeRate   float64              `json:"risk_free_rate" yaml:"risk_free_rate"`
	Metrics        *backtest.Metrics    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	RoundTrips     []backtest.RoundTrip `json:"round_trips" yaml:"round_trips"`
	Trades         []backtest.Trade     `json:"trades" yaml:"trades"`
	Equity         []Point              `json:"equity" yaml:"equity"`
}

// New builds a report from a completed backtest
func New(out *backtest.Outcome) *Report {
	req := out.Request
	r := &Report{
		ID:             newID(),
		CreatedAt:      time.Now().UTC(),
		Symbol:         strings.ToUpper(req.Symbol),
		Strategy:       req.Strategy,
		Description:    out.Description,
		Params:         req.Params,
		Bars:           out.Prices.Len(),
		InitialCapital: req.InitialCapital,
		RiskFreeRate:   req.RiskFreeRate,
		Metrics:        out.Metrics,
		Trades:         out.Result.Trades,
		RoundTrips:     backtest.RoundTrips(out.Result.Trades),
	}
	if r.Trades == nil {
		r.Trades = []backtest.Trade{}
	}
	if r.RoundTrips == nil {
		r.RoundTrips = []backtest.RoundTrip{}
	}

	n := out.Prices.Len()
	if n > 0 {
		r.Start = out.Prices.Time(0)
		r.End = out.Prices.Time(n - 1)
	}

	r.Equity = make([]Point, n)
	for i := 0; i < n; i++ {
		p := Point{
			Time:     out.Prices.Time(i),
			Close:    out.Prices.Value(i),
			Signal:   core.ActionFromValue(out.Signals.Value(i)),
			Position: int(out.Result.Position.Value(i)),
			Value:    out.Result.PortfolioValue.Value(i),
		}
		if len(out.Overlays) > 0 {
			p.Overlays = make(map[string]float64, len(out.Overlays))
			for name, line := range out.Overlays {
				p.Overlays[name] = line.Value(i)
			}
		}
		r.Equity[i] = p
	}
	return r
}

// newID returns a time-ordered UUID so archived reports list chronologically
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Encode renders the report in the given format
func (r *Report) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatText:
		var buf bytes.Buffer
		if err := r.WriteText(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("unknown report format %q", format))
	}
}

// Decode parses a JSON or YAML report
func Decode(data []byte, format Format) (*Report, error) {
	var r Report
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatYAML:
		err = yaml.Unmarshal(data, &r)
	default:
		return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("cannot decode %q reports", format))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidData, err)
	}
	return &r, nil
}

// WriteText writes a human-readable summary
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Symbol:\t%s\n", r.Symbol)
	fmt.Fprintf(tw, "Strategy:\t%s\n", r.Description)
	if r.Bars > 0 {
		fmt.Fprintf(tw, "Period:\t%s to %s (%d bars)\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Bars)
	}
	fmt.Fprintf(tw, "Initial capital:\t%.2f\n", r.InitialCapital)

	if r.Metrics == nil {
		fmt.Fprintf(tw, "\nNo trades were made.\n")
		return tw.Flush()
	}

	m := r.Metrics
	fmt.Fprintf(tw, "\nFinal value:\t%.2f\n", m.FinalValue)
	fmt.Fprintf(tw, "Total return:\t%.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(tw, "Sharpe ratio:\t%.2f\n", m.SharpeRatio)
	fmt.Fprintf(tw, "Max drawdown:\t%.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(tw, "Win rate:\t%.2f%%\n", m.WinRate*100)
	fmt.Fprintf(tw, "Round trips:\t%d\n", m.TotalTrades)

	if len(r.Trades) > 0 {
		fmt.Fprintf(tw, "\nDATE\tSIDE\tPRICE\tSHARES\n")
		for _, t := range r.Trades {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f\n", t.Time.Format("2006-01-02"), t.Side, t.Price, t.Shares)
		}
	}
	return tw.Flush()
}

// ParamString renders params as sorted key=value pairs
func ParamString(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
