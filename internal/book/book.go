// Package book implements the per-outcome central limit order book: the
// price-level FIFO queue, the ordered price index, the bid/ask sides, and
// the order book that composes them.
package book

import (
	"time"

	"github.com/shopspring/decimal"

	"outcomex/internal/order"
)

// MatchableIterator is a lazy, incrementally-consumed walk over the
// opposite side of a book from a taker's perspective: it never
// materializes more than the current best level, so the engine can
// abandon it as soon as the taker is satisfied.
type MatchableIterator struct {
	side       *Side
	takerSide  order.Side
	limitTicks *int64
}

// Next returns the current best resident eligible to match, or (nil,
// false) if the opposite side is empty or its best price no longer
// satisfies the taker's limit. It does not remove anything; callers
// mutate the book (via Side.Remove/UpdateRemaining) and call Next again
// to observe the new state.
func (it *MatchableIterator) Next() (*order.Order, bool) {
	level := it.side.BestLevel()
	if level == nil {
		return nil, false
	}
	if it.limitTicks != nil {
		limit := *it.limitTicks
		if it.takerSide == order.Buy && level.Price > limit {
			return nil, false
		}
		if it.takerSide == order.Sell && level.Price < limit {
			return nil, false
		}
	}
	return level.peekFront(), true
}

// OrderBook is the book for one outcome token of one market: bid side +
// ask side + last-trade state + cumulative notional volume.
type OrderBook struct {
	Market  string
	Outcome order.Outcome

	Bids *Side
	Asks *Side

	orders map[string]*order.Order

	HasLastTrade     bool
	LastTradePrice   int64
	LastTradeTime    time.Time
	CumulativeVolume decimal.Decimal
}

func New(market string, outcome order.Outcome) *OrderBook {
	return &OrderBook{
		Market:           market,
		Outcome:          outcome,
		Bids:             newBidSide(),
		Asks:             newAskSide(),
		orders:           make(map[string]*order.Order),
		CumulativeVolume: decimal.Zero,
	}
}

func (b *OrderBook) sideFor(s order.Side) *Side {
	if s == order.Buy {
		return b.Bids
	}
	return b.Asks
}

// AddOrder requires o.Type == LIMIT, o.PriceTicks present, and a
// resting-eligible status.
func (b *OrderBook) AddOrder(o *order.Order) {
	b.sideFor(o.Side).Add(o)
	b.orders[o.ID] = o
}

// RemoveOrder searches both sides for id.
func (b *OrderBook) RemoveOrder(id string) (*order.Order, bool) {
	if o, ok := b.Bids.Remove(id); ok {
		delete(b.orders, id)
		return o, true
	}
	if o, ok := b.Asks.Remove(id); ok {
		delete(b.orders, id)
		return o, true
	}
	return nil, false
}

func (b *OrderBook) GetOrder(id string) (*order.Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

func (b *OrderBook) UpdateRemaining(id string, side order.Side, newRemaining int64) {
	b.sideFor(side).UpdateRemaining(id, newRemaining)
	if newRemaining <= 0 {
		delete(b.orders, id)
	}
}

// CanMatch reports whether the incoming side can cross the book: BUY
// matches if an ask exists with price <= limitTicks (or any ask if
// limitTicks is nil, i.e. a market order); SELL is symmetric.
func (b *OrderBook) CanMatch(incomingSide order.Side, limitTicks *int64) bool {
	var opposite *Side
	if incomingSide == order.Buy {
		opposite = b.Asks
	} else {
		opposite = b.Bids
	}
	best, ok := opposite.BestPrice()
	if !ok {
		return false
	}
	if limitTicks == nil {
		return true
	}
	if incomingSide == order.Buy {
		return best <= *limitTicks
	}
	return best >= *limitTicks
}

// MatchableOrders returns a lazy iterator over the opposite side of
// incomingSide, starting at its best price, stopping at the first level
// that would violate limitTicks (nil means no limit, i.e. a market order).
func (b *OrderBook) MatchableOrders(incomingSide order.Side, limitTicks *int64) *MatchableIterator {
	var opposite *Side
	if incomingSide == order.Buy {
		opposite = b.Asks
	} else {
		opposite = b.Bids
	}
	return &MatchableIterator{side: opposite, takerSide: incomingSide, limitTicks: limitTicks}
}

// RecordTrade updates the book's last-trade state and cumulative notional
// volume after a fill.
func (b *OrderBook) RecordTrade(priceTicks int64, notional decimal.Decimal) {
	b.HasLastTrade = true
	b.LastTradePrice = priceTicks
	b.LastTradeTime = time.Now()
	b.CumulativeVolume = b.CumulativeVolume.Add(notional)
}

// Snapshot returns bids best-first, asks best-first, aggregated, with
// empty levels absent.
type Snapshot struct {
	Market    string      `json:"market"`
	Outcome   order.Outcome `json:"outcome"`
	Bids      []LevelView `json:"bids"`
	Asks      []LevelView `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

func (b *OrderBook) TakeSnapshot(maxLevels int) Snapshot {
	return Snapshot{
		Market:    b.Market,
		Outcome:   b.Outcome,
		Bids:      b.Bids.Levels(maxLevels),
		Asks:      b.Asks.Levels(maxLevels),
		Timestamp: time.Now(),
	}
}

// Quote holds the current best bid/ask, spread and mid (only when both
// sides are present), and the last trade price.
type Quote struct {
	BestBid        *int64
	BestAsk        *int64
	Spread         *int64
	Mid            *float64
	LastTradePrice *int64
}

func (b *OrderBook) Quote() Quote {
	var q Quote
	if bid, ok := b.Bids.BestPrice(); ok {
		v := bid
		q.BestBid = &v
	}
	if ask, ok := b.Asks.BestPrice(); ok {
		v := ask
		q.BestAsk = &v
	}
	if q.BestBid != nil && q.BestAsk != nil {
		spread := *q.BestAsk - *q.BestBid
		q.Spread = &spread
		mid := (float64(*q.BestBid) + float64(*q.BestAsk)) / 2
		q.Mid = &mid
	}
	if b.HasLastTrade {
		v := b.LastTradePrice
		q.LastTradePrice = &v
	}
	return q
}
