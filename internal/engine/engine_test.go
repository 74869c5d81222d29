package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outcomex/internal/config"
	"outcomex/internal/events"
	"outcomex/internal/ledger"
	"outcomex/internal/metrics"
	"outcomex/internal/order"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	bus := events.NewBus()
	e := New(config.Defaults(), l, bus, metrics.NewMetrics())
	return e, l
}

func seedWallet(t *testing.T, l *ledger.Ledger, agent string, available float64) {
	t.Helper()
	_, err := l.CreateWallet(agent, "USD", decimal.NewFromFloat(available))
	require.NoError(t, err)
}

func ticks(v int64) *int64 { return &v }

// TestFullFillSingleLevel covers S1: a LIMIT SELL fully crossed by a
// LIMIT BUY at the same price, both orders end FILLED. Each side's lock
// and escrow contribution includes its 0.2% fee on top of its notional
// (40 + 0.12 for the seller, 60 + 0.12 for the buyer).
func TestFullFillSingleLevel(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "A", 1000)
	seedWallet(t, l, "B", 1000)

	sellOrder, sellTrades, err := e.PlaceOrder(PlaceOrderRequest{
		AgentID: "A", Market: "M1", Side: order.Sell, Outcome: order.Yes,
		Type: order.Limit, PriceTicks: ticks(60), Quantity: 100,
	})
	require.NoError(t, err)
	assert.Empty(t, sellTrades)
	assert.Equal(t, order.Open, sellOrder.Status)

	avail, locked, _, err := l.GetBalance("A")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(959.88).Equal(avail))
	assert.True(t, decimal.NewFromFloat(40.12).Equal(locked))

	buyOrder, buyTrades, err := e.PlaceOrder(PlaceOrderRequest{
		AgentID: "B", Market: "M1", Side: order.Buy, Outcome: order.Yes,
		Type: order.Limit, PriceTicks: ticks(60), Quantity: 100,
	})
	require.NoError(t, err)
	require.Len(t, buyTrades, 1)
	assert.Equal(t, int64(100), buyTrades[0].Quantity)
	assert.Equal(t, int64(60), buyTrades[0].PriceTicks)

	assert.Equal(t, order.Filled, buyOrder.Status)
	assert.Equal(t, order.Filled, sellOrder.Status)
	assert.True(t, decimal.Zero.Equal(buyOrder.LockedAmount))
	assert.True(t, decimal.Zero.Equal(sellOrder.LockedAmount))

	aAvail, aLocked, _, err := l.GetBalance("A")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(959.88).Equal(aAvail))
	assert.True(t, decimal.Zero.Equal(aLocked))

	bAvail, bLocked, _, err := l.GetBalance("B")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(939.88).Equal(bAvail))
	assert.True(t, decimal.Zero.Equal(bLocked))

	esc, ok := l.TradeEscrowFor(buyTrades[0].ID)
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(100.24).Equal(esc.Total()))

	snap, ok := e.GetBookSnapshot("M1", order.Yes, 10)
	require.True(t, ok)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)

	quote, ok := e.BestPrices("M1", order.Yes)
	require.True(t, ok)
	require.NotNil(t, quote.LastTradePrice)
	assert.Equal(t, int64(60), *quote.LastTradePrice)
}

// TestWalkTheBook covers S2: a taker crosses two levels, stops at a
// third that violates its limit, and rests PARTIAL at its own price.
func TestWalkTheBook(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "M1", 1000)
	seedWallet(t, l, "M2", 1000)
	seedWallet(t, l, "M3", 1000)
	seedWallet(t, l, "Taker", 1000)

	_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "M1", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 50})
	require.NoError(t, err)
	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "M2", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(62), Quantity: 40})
	require.NoError(t, err)
	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "M3", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(65), Quantity: 30})
	require.NoError(t, err)

	taker, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "Taker", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(63), Quantity: 100})
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.Equal(t, int64(50), trades[0].Quantity)
	assert.Equal(t, int64(60), trades[0].PriceTicks)
	assert.Equal(t, int64(40), trades[1].Quantity)
	assert.Equal(t, int64(62), trades[1].PriceTicks)

	assert.Equal(t, order.Partial, taker.Status)
	assert.Equal(t, int64(90), taker.FilledQuantity)
	assert.Equal(t, int64(10), taker.RemainingQuantity)

	expectedAvg := decimal.NewFromFloat(50 * 0.60).Add(decimal.NewFromFloat(40 * 0.62)).Div(decimal.NewFromInt(90))
	assert.True(t, expectedAvg.Sub(taker.AvgFillPrice).Abs().LessThan(decimal.NewFromFloat(0.0001)))

	snap, ok := e.GetBookSnapshot("MKT", order.Yes, 10)
	require.True(t, ok)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(63), snap.Bids[0].Price)
	assert.Equal(t, int64(10), snap.Bids[0].Quantity)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(65), snap.Asks[0].Price)
}

// TestFIFOTieBreak covers S3: two resting BUYs at the same price match
// in arrival order against an incoming SELL.
func TestFIFOTieBreak(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "O1", 1000)
	seedWallet(t, l, "O2", 1000)
	seedWallet(t, l, "S", 1000)

	o1, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "O1", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(50), Quantity: 50})
	require.NoError(t, err)
	o2, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "O2", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(50), Quantity: 50})
	require.NoError(t, err)

	_, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "S", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(50), Quantity: 70})
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.Equal(t, o1.ID, trades[0].BuyOrderID)
	assert.Equal(t, int64(50), trades[0].Quantity)
	assert.Equal(t, o2.ID, trades[1].BuyOrderID)
	assert.Equal(t, int64(20), trades[1].Quantity)

	assert.Equal(t, order.Filled, o1.Status)
	assert.Equal(t, order.Partial, o2.Status)
	assert.Equal(t, int64(30), o2.RemainingQuantity)

	quote, ok := e.BestPrices("MKT", order.Yes)
	require.True(t, ok)
	require.NotNil(t, quote.LastTradePrice)
	assert.Equal(t, int64(50), *quote.LastTradePrice)
}

// TestInsufficientFunds covers S4: an underfunded placement is rejected
// with no order created and no wallet change.
func TestInsufficientFunds(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "Poor", 10)

	o, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "Poor", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 100})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Nil(t, o)
	assert.Nil(t, trades)

	avail, locked, _, err := l.GetBalance("Poor")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(avail))
	assert.True(t, decimal.Zero.Equal(locked))
}

// TestMarketOrderPartialLiquidity covers S5: a MARKET order consumes
// every available unit then cancels, releasing the unused portion of
// its estimated escrow. The one executed fill draws its notional (7)
// plus fee (0.014) from the taker's lock; the rest is released.
func TestMarketOrderPartialLiquidity(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "Maker", 1000)
	seedWallet(t, l, "Taker", 1000)

	_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "Maker", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(70), Quantity: 10})
	require.NoError(t, err)

	taker, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "Taker", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Market, Quantity: 100})
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, order.Cancelled, taker.Status)
	assert.Equal(t, int64(10), taker.FilledQuantity)
	assert.Equal(t, int64(90), taker.RemainingQuantity)
	assert.True(t, decimal.NewFromFloat(0.70).Equal(taker.AvgFillPrice))
	assert.True(t, decimal.Zero.Equal(taker.LockedAmount))

	avail, locked, _, err := l.GetBalance("Taker")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(1000-7.014).Equal(avail))
	assert.True(t, decimal.Zero.Equal(locked))
}

// TestIdempotentExternalDeposit covers S6: replaying the same session
// id is a no-op past the first call.
func TestIdempotentExternalDeposit(t *testing.T) {
	l := ledger.New()

	tx1, err := l.DepositFromExternal("agent", decimal.NewFromInt(500), "sess-42")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(tx1.Amount))

	tx2, err := l.DepositFromExternal("agent", decimal.NewFromInt(500), "sess-42")
	assert.ErrorIs(t, err, ledger.ErrDuplicateSession)
	assert.Nil(t, tx2)

	avail, _, _, err := l.GetBalance("agent")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(avail))
}

func TestCancelOrderReleasesLock(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "A", 1000)

	o, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "A", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 100})
	require.NoError(t, err)

	cancelled, err := e.CancelOrder(o.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, order.Cancelled, cancelled.Status)

	avail, locked, _, err := l.GetBalance("A")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(avail))
	assert.True(t, decimal.Zero.Equal(locked))

	snap, ok := e.GetBookSnapshot("MKT", order.Yes, 10)
	require.True(t, ok)
	assert.Empty(t, snap.Bids)
}

func TestCancelOrderNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	o, err := e.CancelOrder("missing", "nobody")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Nil(t, o)
}

func TestMatchBoundRespected(t *testing.T) {
	e, l := newTestEngine(t)
	cfg := config.Defaults()
	cfg.MaxOrdersPerMatch = 2
	e = New(cfg, l, events.NewBus(), metrics.NewMetrics())

	for i := 0; i < 5; i++ {
		agent := "maker" + string(rune('A'+i))
		seedWallet(t, l, agent, 1000)
		_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: agent, Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 10})
		require.NoError(t, err)
	}

	seedWallet(t, l, "taker", 1000)
	taker, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "taker", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 50})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(trades), 2)
	assert.Equal(t, order.Partial, taker.Status)
}

// TestMarketOrderStopsAtLockBudget covers the case a MARKET order's
// buffered estimate turns out not to cover the full walk: the book
// offers enough quantity to fill completely, but only at levels whose
// total notional+fee would exceed what the taker has locked. The walk
// must stop there rather than draining the wallet's locked balance
// beyond what this order reserved, leaving the order CANCELLED with its
// unused lock released.
func TestMarketOrderStopsAtLockBudget(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "cheap", 1000)
	seedWallet(t, l, "expensive", 1000)
	seedWallet(t, l, "taker", 1000)

	// Best ask is tiny at a cheap price; the rest of the book is at the
	// worst feasible price, far above what a 5% buffer over the best ask
	// can cover for the full quantity.
	_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "cheap", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(1), Quantity: 1})
	require.NoError(t, err)
	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "expensive", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(99), Quantity: 100})
	require.NoError(t, err)

	taker, trades, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "taker", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Market, Quantity: 100})
	require.NoError(t, err)

	// Estimate locked = 0.01 * 100 * 1.05 = 1.05, nowhere near enough to
	// also absorb the @0.99 level, so the walk must stop after the first
	// fill instead of erroring out or overdrawing the wallet.
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].Quantity)
	assert.Equal(t, order.Cancelled, taker.Status)
	assert.Equal(t, int64(1), taker.FilledQuantity)
	assert.Equal(t, int64(99), taker.RemainingQuantity)
	assert.True(t, decimal.Zero.Equal(taker.LockedAmount))

	_, locked, _, err := l.GetBalance("taker")
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(locked))

	snap, ok := e.GetBookSnapshot("MKT", order.Yes, 10)
	require.True(t, ok)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(99), snap.Asks[0].Price)
}

func TestInvalidPriceAndQuantity(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "A", 1000)

	_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "A", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(0), Quantity: 10})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "A", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(100), Quantity: 10})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "A", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(50), Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestEventOrdering(t *testing.T) {
	e, l := newTestEngine(t)
	seedWallet(t, l, "A", 1000)
	seedWallet(t, l, "B", 1000)

	var seen []events.Type
	bus := events.NewBus()
	bus.Subscribe(func(t events.Type, _ any) { seen = append(seen, t) })
	e = New(config.Defaults(), l, bus, metrics.NewMetrics())

	_, _, err := e.PlaceOrder(PlaceOrderRequest{AgentID: "A", Market: "MKT", Side: order.Sell, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 100})
	require.NoError(t, err)
	seen = nil

	_, _, err = e.PlaceOrder(PlaceOrderRequest{AgentID: "B", Market: "MKT", Side: order.Buy, Outcome: order.Yes, Type: order.Limit, PriceTicks: ticks(60), Quantity: 100})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, events.TradesExecuted, seen[0])
	assert.Equal(t, events.OrdersCreated, seen[1])
}
