package strategy

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/series"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Int reads an integer parameter, accepting the numeric types produced by
// viper and encoding/json. ok is false when the key is absent.
func (c Config) Int(key string) (value int, ok bool, err error) {
	raw, present := c.Params[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, true, core.WrapError(core.ErrInvalidParameter,
				fmt.Errorf("%s must be a whole number, got %v", key, v))
		}
		return int(v), true, nil
	default:
		return 0, true, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("%s has unsupported type %T", key, raw))
	}
}

// String reads a string parameter.
func (c Config) String(key string) (string, bool) {
	v, ok := c.Params[key].(string)
	return v, ok
}

// Strategy turns a price series into a signal series (+1 buy, -1 sell,
// 0 hold) on the same index.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Signals(prices series.Series) (series.Series, error)
}

// Factory creates an unconfigured strategy instance
type Factory func() Strategy

// Overlayer is implemented by strategies that can export the indicator lines
// their signals are derived from, keyed by line name.
type Overlayer interface {
	Overlays(prices series.Series) (map[string]series.Series, error)
}
