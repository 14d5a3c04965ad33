package ma_crossover

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/indicator"
	"github.com/newthinker/macross/internal/series"
	"github.com/newthinker/macross/internal/strategy"
)

// Name is the registry name of the strategy
const Name = "ma_crossover"

const (
	DefaultFastPeriod = 20
	DefaultSlowPeriod = 50
)

// MAType selects the moving average used for both lines
type MAType string

const (
	MATypeSMA MAType = "sma"
	MATypeEMA MAType = "ema"
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	maType     MAType
}

// New creates a new MA Crossover strategy using simple moving averages
func New(fastPeriod, slowPeriod int) *MACrossover {
	return NewWithType(fastPeriod, slowPeriod, MATypeSMA)
}

// NewWithType creates a new MA Crossover strategy with the given average type
func NewWithType(fastPeriod, slowPeriod int, maType MAType) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		maType:     maType,
	}
}

// Factory returns a strategy with default periods, for registration in a
// strategy.Engine
func Factory() strategy.Strategy {
	return New(DefaultFastPeriod, DefaultSlowPeriod)
}

func (m *MACrossover) Name() string {
	return Name
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%s %d/%d)", m.maType, m.fastPeriod, m.slowPeriod)
}

// FastPeriod returns the fast average period
func (m *MACrossover) FastPeriod() int { return m.fastPeriod }

// SlowPeriod returns the slow average period
func (m *MACrossover) SlowPeriod() int { return m.slowPeriod }

// MAType returns the average type
func (m *MACrossover) MAType() MAType { return m.maType }

// Params returns the configuration in the form Init accepts
func (m *MACrossover) Params() map[string]any {
	return map[string]any{
		"fast_period": m.fastPeriod,
		"slow_period": m.slowPeriod,
		"ma_type":     string(m.maType),
	}
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	fast, ok, err := cfg.Int("fast_period")
	if err != nil {
		return err
	}
	if ok {
		m.fastPeriod = fast
	}

	slow, ok, err := cfg.Int("slow_period")
	if err != nil {
		return err
	}
	if ok {
		m.slowPeriod = slow
	}

	if t, ok := cfg.String("ma_type"); ok && t != "" {
		m.maType = MAType(t)
	}

	return m.Validate()
}

// Validate checks the periods and average type
func (m *MACrossover) Validate() error {
	if m.fastPeriod < 1 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("fast period must be at least 1, got %d", m.fastPeriod))
	}
	if m.slowPeriod < 1 {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("slow period must be at least 1, got %d", m.slowPeriod))
	}
	if m.fastPeriod >= m.slowPeriod {
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("fast period %d must be less than slow period %d", m.fastPeriod, m.slowPeriod))
	}
	switch m.maType {
	case MATypeSMA, MATypeEMA:
	default:
		return core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("unknown ma_type %q", m.maType))
	}
	return nil
}

// Averages returns the fast and slow moving averages of prices
func (m *MACrossover) Averages(prices series.Series) (fast, slow series.Series, err error) {
	average := indicator.SMA
	if m.maType == MATypeEMA {
		average = indicator.EMA
	}

	fast, err = average(prices, m.fastPeriod)
	if err != nil {
		return series.Series{}, series.Series{}, err
	}
	slow, err = average(prices, m.slowPeriod)
	if err != nil {
		return series.Series{}, series.Series{}, err
	}
	return fast, slow, nil
}

// Signals returns +1 where the fast average crosses above the slow one and -1
// where it crosses below
func (m *MACrossover) Signals(prices series.Series) (series.Series, error) {
	fast, slow, err := m.Averages(prices)
	if err != nil {
		return series.Series{}, err
	}
	return GenerateSignals(fast, slow)
}

// Overlays returns the fast and slow averages for chart exports
func (m *MACrossover) Overlays(prices series.Series) (map[string]series.Series, error) {
	fast, slow, err := m.Averages(prices)
	if err != nil {
		return nil, err
	}
	return map[string]series.Series{
		"fast_ma": fast,
		"slow_ma": slow,
	}, nil
}
