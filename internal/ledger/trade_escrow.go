package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEscrow is the pooled account a single trade's buyer and seller
// fund at execution; it is held until market settlement.
// Once created it is never decreased until settlement.
type TradeEscrow struct {
	TradeID      string
	BuyerAmount  decimal.Decimal
	SellerAmount decimal.Decimal
	CreatedAt    time.Time
}

// Total is the full amount pooled for the trade: buyer and seller
// contributions, each notional plus the trade's fee, so it funds both
// the winner's eventual one-unit payout and the house fee (also mirrored
// on the Trade record's BuyerFee/SellerFee for reporting).
func (t *TradeEscrow) Total() decimal.Decimal {
	return t.BuyerAmount.Add(t.SellerAmount)
}
