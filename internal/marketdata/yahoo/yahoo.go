// Package yahoo downloads daily bars from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/marketdata"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent      = "Mozilla/5.0 (compatible; macross)"
)

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return core.WrapError(core.ErrInvalidParameter, fmt.Errorf("symbol cannot be empty"))
	}
	if !validSymbol.MatchString(symbol) {
		return core.WrapError(core.ErrInvalidParameter, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return nil
}

// Client fetches daily history and implements backtest.Provider
type Client struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another chart endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new Yahoo client
func New(opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// toYahooSymbol converts internal symbol format to Yahoo format
func toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily bars for symbol within [start, end]. A zero
// start reaches back to the first listed day; a zero end means now.
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	symbol = strings.ToUpper(symbol)
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = time.Now()
	}

	q := url.Values{}
	q.Set("interval", "1d")
	period1 := int64(0)
	if !start.IsZero() {
		period1 = start.Unix()
	}
	q.Set("period1", fmt.Sprint(period1))
	// period2 is exclusive
	q.Set("period2", fmt.Sprint(end.AddDate(0, 0, 1).Unix()))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(toYahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("yahoo has no symbol %s", symbol))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data for symbol: %s", symbol))
	}

	bars, skipped := toBars(symbol, result.Chart.Result[0])
	if skipped > 0 {
		c.logger.Debug("skipped incomplete bars", zap.String("symbol", symbol), zap.Int("skipped", skipped))
	}

	bars = marketdata.Between(bars, start, end)
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s in range", symbol))
	}
	if err := marketdata.Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// toBars converts a chart result to daily bars at UTC midnight, skipping
// days with any missing field
func toBars(symbol string, r chartResult) ([]core.Bar, int) {
	quotes := r.Indicators.Quote[0]
	bars := make([]core.Bar, 0, len(r.Timestamp))
	skipped := 0
	for i, ts := range r.Timestamp {
		if !present(i, quotes.Open, quotes.High, quotes.Low, quotes.Close) || i >= len(quotes.Volume) || quotes.Volume[i] == nil {
			skipped++
			continue
		}
		t := time.Unix(ts, 0).UTC()
		bars = append(bars, core.Bar{
			Symbol: symbol,
			Time:   time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Open:   *quotes.Open[i],
			High:   *quotes.High[i],
			Low:    *quotes.Low[i],
			Close:  *quotes.Close[i],
			Volume: *quotes.Volume[i],
		})
	}
	return bars, skipped
}

func present(i int, cols ...[]*float64) bool {
	for _, col := range cols {
		if i >= len(col) || col[i] == nil {
			return false
		}
	}
	return true
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}
