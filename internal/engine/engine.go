// Package engine is the matching engine: order placement, the matching
// loop, per-trade escrow moves, cancellation, and event emission. It is
// the one component that touches both the book and the ledger, and the
// only place the two are made to agree.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"outcomex/internal/book"
	"outcomex/internal/config"
	"outcomex/internal/events"
	"outcomex/internal/ledger"
	"outcomex/internal/market"
	"outcomex/internal/metrics"
	"outcomex/internal/money"
	"outcomex/internal/order"
)

// Engine owns the market registry, the ledger, and the event bus. One
// Engine serves every market; each market serializes its own placements
// and cancellations through its own mutex (see market.Market).
type Engine struct {
	cfg     config.Config
	ledger  *ledger.Ledger
	bus     *events.Bus
	metrics *metrics.Metrics

	marketsMu sync.RWMutex
	markets   map[string]*market.Market
}

func New(cfg config.Config, l *ledger.Ledger, bus *events.Bus, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		bus:     bus,
		metrics: m,
		markets: make(map[string]*market.Market),
	}
}

// PlaceOrderRequest is the engine's placement ingress. PriceTicks is
// required for LIMIT orders and nil for MARKET orders.
type PlaceOrderRequest struct {
	AgentID       string
	Market        string
	Side          order.Side
	Outcome       order.Outcome
	Type          order.Type
	PriceTicks    *int64
	Quantity      int64
	ClientOrderID string
	Metadata      map[string]string
}

// InitializeMarket lazily creates a market's two books if they don't
// already exist. place_order does this implicitly; this is the explicit
// ingress operation for callers that want to pre-warm a market.
func (e *Engine) InitializeMarket(marketID string) {
	e.getOrCreateMarket(marketID)
}

func (e *Engine) getOrCreateMarket(marketID string) *market.Market {
	e.marketsMu.RLock()
	m, ok := e.markets[marketID]
	e.marketsMu.RUnlock()
	if ok {
		return m
	}
	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	if m, ok = e.markets[marketID]; ok {
		return m
	}
	m = market.New(marketID)
	e.markets[marketID] = m
	return m
}

func (e *Engine) lookupMarket(marketID string) (*market.Market, bool) {
	e.marketsMu.RLock()
	defer e.marketsMu.RUnlock()
	m, ok := e.markets[marketID]
	return m, ok
}

// PlaceOrder validates, locks escrow, constructs the order, runs the
// matching loop, resolves the terminal status, and emits events. Either
// it returns an order with its trades and every side effect has already
// landed, or it returns an error and nothing changed.
func (e *Engine) PlaceOrder(req PlaceOrderRequest) (*order.Order, []*order.Trade, error) {
	start := time.Now()
	defer func() {
		e.metrics.AddLatency(time.Since(start).Microseconds())
	}()
	e.metrics.IncOrdersReceived()

	if req.Quantity <= 0 {
		e.metrics.IncPlacementsRejected()
		return nil, nil, ErrInvalidQuantity
	}

	ticksPerUnit := e.cfg.TicksPerUnit()
	if req.Type == order.Limit {
		if req.PriceTicks == nil {
			e.metrics.IncPlacementsRejected()
			return nil, nil, ErrInvalidPrice
		}
		p := *req.PriceTicks
		if p < 1 || p > ticksPerUnit-1 {
			e.metrics.IncPlacementsRejected()
			return nil, nil, ErrInvalidPrice
		}
	}

	mkt := e.getOrCreateMarket(req.Market)
	mkt.Lock()
	defer mkt.Unlock()

	ob := mkt.Book(req.Outcome)

	lockAmount := e.requiredEscrow(req, ob, ticksPerUnit)

	orderID := uuid.New().String()
	lockRes := e.ledger.Lock(req.AgentID, lockAmount, "order", orderID)
	if !lockRes.Success {
		e.metrics.IncPlacementsRejected()
		return nil, nil, ErrInsufficientFunds
	}
	e.metrics.IncEscrowLocks()

	var priceTicks int64
	if req.PriceTicks != nil {
		priceTicks = *req.PriceTicks
	}
	o := order.New(orderID, req.AgentID, req.Market, req.Side, req.Outcome, req.Type, priceTicks, req.Quantity, req.ClientOrderID, req.Metadata)
	o.LockedAmount = lockAmount

	trades, err := e.match(o, ob)
	if err != nil {
		return nil, nil, err
	}

	e.finalize(o, ob)

	tradeCount := int64(len(trades))
	e.metrics.IncTradesExecuted(tradeCount)
	if tradeCount > 0 {
		e.metrics.IncOrdersMatched(tradeCount + 1)
	}

	e.bus.Publish(events.OrdersCreated, events.OrdersCreatedPayload{Order: o, Trades: trades})

	return o, trades, nil
}

// requiredEscrow computes the lock amount for a placement. For LIMIT
// orders it includes the fee each fill will draw alongside its notional
// (see tradeAmounts), and is exact whenever the order fills at its own price,
// which is always true for a resting maker and, since the fee+notional
// total a taker owes per fill is monotonically non-increasing as its
// execution price improves on its own limit, an upper bound for a taker
// crossing at better prices too. For MARKET orders it is an estimate
// against the opposite side's current best price plus a configured
// buffer (no separate fee term), falling back to the worst feasible price if the opposite side
// is empty; match()'s per-fill cap protects against that estimate
// proving insufficient mid-walk.
func (e *Engine) requiredEscrow(req PlaceOrderRequest, ob *book.OrderBook, ticksPerUnit int64) decimal.Decimal {
	increment := e.cfg.MinPriceIncrement

	if req.Type == order.Limit {
		price := *req.PriceTicks
		buyerNotional, sellerNotional, fee := e.tradeAmounts(price, req.Quantity)
		if req.Side == order.Buy {
			return buyerNotional.Add(fee)
		}
		return sellerNotional.Add(fee)
	}

	quote := ob.Quote()
	var estimateTicks int64
	if req.Side == order.Buy {
		if quote.BestAsk != nil {
			estimateTicks = *quote.BestAsk
		} else {
			estimateTicks = ticksPerUnit - 1
		}
	} else {
		if quote.BestBid != nil {
			estimateTicks = ticksPerUnit - *quote.BestBid
		} else {
			estimateTicks = ticksPerUnit - 1
		}
	}
	notional := money.Notional(estimateTicks, req.Quantity, increment)
	buffer := notional.Mul(e.cfg.MarketBufferPct)
	return notional.Add(buffer)
}

// tradeAmounts computes both sides' notional contributions and the
// shared fee for a fill of quantity at priceTicks. The fee is rated
// against the buyer's notional and charged identically to both sides, so
// buyer and seller always contribute the same fee for the same trade.
func (e *Engine) tradeAmounts(priceTicks, quantity int64) (buyerNotional, sellerNotional, fee decimal.Decimal) {
	increment := e.cfg.MinPriceIncrement
	ticksPerUnit := e.cfg.TicksPerUnit()
	buyerNotional = money.Notional(priceTicks, quantity, increment)
	sellerNotional = money.Notional(ticksPerUnit-priceTicks, quantity, increment)
	fee = money.Fee(buyerNotional, e.cfg.FeeRate)
	return buyerNotional, sellerNotional, fee
}

// requiredContribution is what the given side must draw from its own
// LockedAmount to cover a fill of quantity at priceTicks: its notional
// plus the shared fee.
func (e *Engine) requiredContribution(side order.Side, priceTicks, quantity int64) decimal.Decimal {
	buyerNotional, sellerNotional, fee := e.tradeAmounts(priceTicks, quantity)
	if side == order.Buy {
		return buyerNotional.Add(fee)
	}
	return sellerNotional.Add(fee)
}

// match drives the matchable iterator against the incoming order until
// it is filled, the opposite side is exhausted, max_orders_per_match
// resting orders have been consumed, or the next fill would draw more
// than o has left locked — at which point the walk stops exactly as if
// liquidity had run out, and a MARKET order with a remainder finalizes
// CANCELLED with no partial, inconsistent state ever published.
func (e *Engine) match(o *order.Order, ob *book.OrderBook) ([]*order.Trade, error) {
	trades := make([]*order.Trade, 0)

	var limitTicks *int64
	if o.Type == order.Limit {
		p := o.PriceTicks
		limitTicks = &p
	}
	it := ob.MatchableOrders(o.Side, limitTicks)

	for len(trades) < e.cfg.MaxOrdersPerMatch && o.RemainingQuantity > 0 {
		resting, ok := it.Next()
		if !ok {
			break
		}
		fillQty := o.RemainingQuantity
		if resting.RemainingQuantity < fillQty {
			fillQty = resting.RemainingQuantity
		}
		if e.requiredContribution(o.Side, resting.PriceTicks, fillQty).GreaterThan(o.LockedAmount) {
			break
		}
		trade, err := e.executeTrade(o, resting, ob)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
		esc, _ := e.ledger.TradeEscrowFor(trade.ID)
		e.bus.Publish(events.TradesExecuted, events.TradesExecutedPayload{Trade: trade, Escrow: esc})
	}

	if len(trades) > 0 {
		e.recomputeAvgFillPrice(o, trades)
	}
	return trades, nil
}

// executeTrade fills the incoming (taker) order against one resting
// (maker) order: creates the trade, moves both parties' notional-plus-fee
// contributions into the trade's escrow pool (so the house fee is
// actually collected, not just recorded), updates quantities and book
// state, and draws down each order's LockedAmount by exactly what it
// contributed so that it always equals the order's current locked
// reservation. An order this fill completes has whatever is still locked
// for it (the saving from fills at better than its limit) released.
func (e *Engine) executeTrade(taker, maker *order.Order, ob *book.OrderBook) (*order.Trade, error) {
	fillQty := taker.RemainingQuantity
	if maker.RemainingQuantity < fillQty {
		fillQty = maker.RemainingQuantity
	}
	priceTicks := maker.PriceTicks

	var buyOrder, sellOrder *order.Order
	if taker.Side == order.Buy {
		buyOrder, sellOrder = taker, maker
	} else {
		buyOrder, sellOrder = maker, taker
	}

	buyerNotional, sellerNotional, fee := e.tradeAmounts(priceTicks, fillQty)
	buyerContribution := buyerNotional.Add(fee)
	sellerContribution := sellerNotional.Add(fee)

	tradeID := uuid.New().String()
	trade := order.NewTrade(tradeID, taker.Market, taker.Outcome, buyOrder.ID, sellOrder.ID,
		buyOrder.AgentID, sellOrder.AgentID, priceTicks, fillQty, fee, fee)

	if err := e.ledger.TransferToTradeEscrow(buyOrder.AgentID, buyerContribution, tradeID, "buyer"); err != nil {
		return nil, &InvariantError{Where: "engine.executeTrade", Why: "buyer escrow transfer: " + err.Error()}
	}
	if err := e.ledger.TransferToTradeEscrow(sellOrder.AgentID, sellerContribution, tradeID, "seller"); err != nil {
		return nil, &InvariantError{Where: "engine.executeTrade", Why: "seller escrow transfer: " + err.Error()}
	}

	buyOrder.LockedAmount = buyOrder.LockedAmount.Sub(buyerContribution)
	sellOrder.LockedAmount = sellOrder.LockedAmount.Sub(sellerContribution)

	now := time.Now()
	taker.RemainingQuantity -= fillQty
	taker.FilledQuantity += fillQty
	taker.UpdatedAt = now
	maker.RemainingQuantity -= fillQty
	maker.FilledQuantity += fillQty
	maker.UpdatedAt = now

	if maker.RemainingQuantity == 0 {
		maker.Status = order.Filled
		maker.FilledAt = &now
		ob.RemoveOrder(maker.ID)
		e.metrics.DecOrdersInBook()
	} else {
		maker.Status = order.Partial
		ob.UpdateRemaining(maker.ID, maker.Side, maker.RemainingQuantity)
	}

	for _, done := range [...]*order.Order{buyOrder, sellOrder} {
		if done.RemainingQuantity == 0 && done.LockedAmount.GreaterThan(decimal.Zero) {
			if err := e.ledger.Release(done.AgentID, done.LockedAmount, "order", done.ID); err == nil {
				e.metrics.IncEscrowReleases()
				done.LockedAmount = decimal.Zero
			}
		}
	}

	ob.RecordTrade(priceTicks, buyerNotional)
	return trade, nil
}

// recomputeAvgFillPrice sets o.AvgFillPrice to the quantity-weighted
// mean execution price over every trade this placement produced.
func (e *Engine) recomputeAvgFillPrice(o *order.Order, trades []*order.Trade) {
	increment := e.cfg.MinPriceIncrement
	var totalQty int64
	totalValue := decimal.Zero
	for _, t := range trades {
		totalQty += t.Quantity
		totalValue = totalValue.Add(money.Notional(t.PriceTicks, t.Quantity, increment))
	}
	if totalQty == 0 {
		return
	}
	o.AvgFillPrice = totalValue.Div(decimal.NewFromInt(totalQty))
}

// finalize resolves the order's terminal status after matching: FILLED
// if nothing remains, PARTIAL if something filled but didn't finish. A
// LIMIT remainder rests on the book; a MARKET remainder is cancelled and
// whatever is left of its escrow is released — which by construction is
// exactly o.LockedAmount, since every fill already drew it down by the
// amount that left locked funds for that order.
func (e *Engine) finalize(o *order.Order, ob *book.OrderBook) {
	now := time.Now()
	switch {
	case o.RemainingQuantity == 0:
		o.Status = order.Filled
		o.FilledAt = &now
	case o.FilledQuantity > 0:
		o.Status = order.Partial
	}

	if o.RemainingQuantity <= 0 {
		return
	}

	if o.Type == order.Limit {
		ob.AddOrder(o)
		e.metrics.IncOrdersInBook()
		return
	}

	o.Status = order.Cancelled
	if o.LockedAmount.GreaterThan(decimal.Zero) {
		if err := e.ledger.Release(o.AgentID, o.LockedAmount, "order", o.ID); err == nil {
			e.metrics.IncEscrowReleases()
			o.LockedAmount = decimal.Zero
		}
	}
}

// CancelOrder scans every market's two books for a resident order
// matching both id and agent. On a hit it removes the order, releases
// its remaining locked amount, marks it CANCELLED and emits
// orders.cancelled. A miss returns ErrOrderNotFound, which callers
// should treat as absent rather than a fault.
func (e *Engine) CancelOrder(orderID, agentID string) (*order.Order, error) {
	e.marketsMu.RLock()
	markets := make([]*market.Market, 0, len(e.markets))
	for _, m := range e.markets {
		markets = append(markets, m)
	}
	e.marketsMu.RUnlock()

	for _, mkt := range markets {
		mkt.Lock()
		found, ok := e.cancelFromMarket(mkt, orderID, agentID)
		mkt.Unlock()
		if ok {
			e.metrics.IncOrdersCancelled()
			e.bus.Publish(events.OrdersCancelled, events.OrdersCancelledPayload{Order: found})
			return found, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (e *Engine) cancelFromMarket(mkt *market.Market, orderID, agentID string) (*order.Order, bool) {
	for _, outcome := range [...]order.Outcome{order.Yes, order.No} {
		ob := mkt.Book(outcome)
		o, ok := ob.GetOrder(orderID)
		if !ok || o.AgentID != agentID {
			continue
		}
		ob.RemoveOrder(orderID)
		e.metrics.DecOrdersInBook()
		if o.LockedAmount.GreaterThan(decimal.Zero) {
			if err := e.ledger.Release(o.AgentID, o.LockedAmount, "order", o.ID); err == nil {
				e.metrics.IncEscrowReleases()
				o.LockedAmount = decimal.Zero
			}
		}
		o.Status = order.Cancelled
		o.UpdatedAt = time.Now()
		return o, true
	}
	return nil, false
}

// GetBookSnapshot returns the book's current state, or (_, false) if the
// market doesn't exist yet.
func (e *Engine) GetBookSnapshot(marketID string, outcome order.Outcome, maxLevels int) (book.Snapshot, bool) {
	mkt, ok := e.lookupMarket(marketID)
	if !ok {
		return book.Snapshot{}, false
	}
	mkt.Lock()
	defer mkt.Unlock()
	return mkt.Book(outcome).TakeSnapshot(maxLevels), true
}

// BestPrices returns the book's current best bid/ask/spread/mid/last
// trade price, or (_, false) if the market doesn't exist yet.
func (e *Engine) BestPrices(marketID string, outcome order.Outcome) (book.Quote, bool) {
	mkt, ok := e.lookupMarket(marketID)
	if !ok {
		return book.Quote{}, false
	}
	mkt.Lock()
	defer mkt.Unlock()
	return mkt.Book(outcome).Quote(), true
}
