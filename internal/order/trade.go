package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of a single execution between a resting
// (maker) order and an incoming (taker) order.
type Trade struct {
	ID          string          `json:"trade_id"`
	Market      string          `json:"market"`
	Outcome     Outcome         `json:"outcome"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	PriceTicks  int64           `json:"price_ticks"`
	Quantity    int64           `json:"quantity"`
	BuyerFee    decimal.Decimal `json:"buyer_fee"`
	SellerFee   decimal.Decimal `json:"seller_fee"`
	Settled     bool            `json:"settled"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

func NewTrade(id, market string, outcome Outcome, buyOrderID, sellOrderID, buyerID, sellerID string, priceTicks, quantity int64, buyerFee, sellerFee decimal.Decimal) *Trade {
	return &Trade{
		ID:          id,
		Market:      market,
		Outcome:     outcome,
		BuyOrderID:  buyOrderID,
		SellOrderID: sellOrderID,
		BuyerID:     buyerID,
		SellerID:    sellerID,
		PriceTicks:  priceTicks,
		Quantity:    quantity,
		BuyerFee:    buyerFee,
		SellerFee:   sellerFee,
		ExecutedAt:  time.Now(),
	}
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade[ID:%s Market:%s/%s Buy:%s Sell:%s Price:%d Qty:%d]",
		t.ID, t.Market, t.Outcome, t.BuyOrderID, t.SellOrderID, t.PriceTicks, t.Quantity)
}
