package backtest

import (
	"github.com/shopspring/decimal"
)

// account is the cash/shares/position state carried through one run.
// Cash is kept in decimal so whole-share sizing and fills do not drift.
type account struct {
	cash     decimal.Decimal
	shares   decimal.Decimal
	position Position
}

func newAccount(capital decimal.Decimal) *account {
	return &account{
		cash:     capital,
		shares:   decimal.Zero,
		position: Flat,
	}
}

// buy spends as much cash as possible on whole shares. It returns the
// number of shares bought, zero when cash does not cover one share.
func (a *account) buy(price decimal.Decimal) decimal.Decimal {
	if a.position != Flat || !price.IsPositive() {
		return decimal.Zero
	}
	shares := a.cash.Div(price).Floor()
	if !shares.IsPositive() {
		return decimal.Zero
	}
	a.cash = a.cash.Sub(shares.Mul(price))
	a.shares = shares
	a.position = Long
	return shares
}

// sell liquidates the whole holding and returns the shares sold
func (a *account) sell(price decimal.Decimal) decimal.Decimal {
	if a.position != Long {
		return decimal.Zero
	}
	sold := a.shares
	a.cash = a.cash.Add(sold.Mul(price))
	a.shares = decimal.Zero
	a.position = Flat
	return sold
}

// value marks the account to market at price
func (a *account) value(price decimal.Decimal) decimal.Decimal {
	return a.cash.Add(a.shares.Mul(price))
}
