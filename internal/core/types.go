package core

import (
	"fmt"
	"math"
	"time"
)

// Action represents a trading signal action
type Action int

const (
	ActionSell Action = -1
	ActionHold Action = 0
	ActionBuy  Action = 1
)

// String returns the lowercase action name
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionHold:
		return "hold"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// MarshalText encodes the action by name so reports stay readable
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an action name
func (a *Action) UnmarshalText(text []byte) error {
	act, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = act
	return nil
}

// ParseAction converts a name into an Action
func ParseAction(s string) (Action, error) {
	switch s {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	case "hold":
		return ActionHold, nil
	}
	return ActionHold, WrapError(ErrInvalidParameter, fmt.Errorf("unknown action %q", s))
}

// ActionFromValue maps a numeric signal value (+1/-1/0) to an Action
func ActionFromValue(v float64) Action {
	switch {
	case v > 0:
		return ActionBuy
	case v < 0:
		return ActionSell
	default:
		return ActionHold
	}
}

// Bar represents a daily candlestick
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// IsValid checks the bar for non-finite or negative prices and an inverted range
func (b Bar) IsValid() bool {
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
		return false
	}
	return b.High >= b.Low
}
