// Package money converts between the engine's fixed-point order-book
// representation (int64 ticks, int64 base-unit quantities) and the
// decimal.Decimal amounts the escrow ledger moves between wallets.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places ledger amounts are rounded to.
// Fees computed from a fractional rate (default 0.2%) rarely land on a
// whole tick sub-unit; Scale gives that rounding a fixed, deterministic
// precision so the conservation law (wallet debits always equal wallet credits) holds exactly across any
// number of trades.
const Scale = 6

// TickValue returns the decimal price of one tick at the given increment,
// e.g. TickValue(1, 0.01) == 0.01.
func TickValue(ticks int64, increment decimal.Decimal) decimal.Decimal {
	return increment.Mul(decimal.NewFromInt(ticks))
}

// PriceOf converts an order-book tick price into its decimal price in
// [0, 1], given the configured tick size.
func PriceOf(ticks int64, increment decimal.Decimal) decimal.Decimal {
	return TickValue(ticks, increment)
}

// Notional returns price * quantity as a decimal amount.
func Notional(priceTicks int64, quantity int64, increment decimal.Decimal) decimal.Decimal {
	price := PriceOf(priceTicks, increment)
	return price.Mul(decimal.NewFromInt(quantity))
}

// Fee applies rate to base and rounds up to Scale decimal places, per
// the rule that fees always round up to the nearest tick sub-unit. Rounding
// up (rather than to nearest) means the house never under-collects and
// the per-trade escrow contribution always covers the fee exactly.
func Fee(base decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).RoundUp(Scale)
}
