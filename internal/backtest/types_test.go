package backtest

import (
	"testing"

	"github.com/newthinker/macross/internal/core"
)

func TestRoundTrip_IsWin(t *testing.T) {
	tests := []struct {
		name string
		trip RoundTrip
		want bool
	}{
		{"price up", RoundTrip{Entry: Trade{Side: core.ActionBuy, Price: 12, Shares: 8}, Exit: Trade{Side: core.ActionSell, Price: 13, Shares: 8}}, true},
		{"price down", RoundTrip{Entry: Trade{Side: core.ActionBuy, Price: 12, Shares: 8}, Exit: Trade{Side: core.ActionSell, Price: 11, Shares: 8}}, false},
		{"flat", RoundTrip{Entry: Trade{Side: core.ActionBuy, Price: 12, Shares: 8}, Exit: Trade{Side: core.ActionSell, Price: 12, Shares: 8}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trip.IsWin(); got != tt.want {
				t.Errorf("IsWin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTrip_PnLAndReturn(t *testing.T) {
	trip := RoundTrip{
		Entry: Trade{Side: core.ActionBuy, Price: 12, Shares: 8},
		Exit:  Trade{Side: core.ActionSell, Price: 13, Shares: 8},
	}

	if trip.PnL() != 8 {
		t.Errorf("PnL() = %v, want 8", trip.PnL())
	}
	if trip.Return() != 1.0/12.0 {
		t.Errorf("Return() = %v, want %v", trip.Return(), 1.0/12.0)
	}
	if trip.Entry.Value() != 96 {
		t.Errorf("Value() = %v, want 96", trip.Entry.Value())
	}
}
