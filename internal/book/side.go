package book

import "outcomex/internal/order"

// Side wraps one ordered price index (bids or asks) plus an orderId→price
// lookup and a best-price cache. The best-price cache is the single
// source of truth for the book's best quote; it is refreshed
// by every add/remove/empty-level event.
type Side struct {
	index       *priceIndex
	orderPrice  map[string]int64
	bestPrice   int64
	hasBest     bool
	totalOrders int
}

func newBidSide() *Side {
	return &Side{index: newBidIndex(), orderPrice: make(map[string]int64)}
}

func newAskSide() *Side {
	return &Side{index: newAskIndex(), orderPrice: make(map[string]int64)}
}

// Add requires order.PriceTicks to be set. It locates or creates the price
// level, pushes the order, updates the orderId index, and refreshes the
// best-price cache.
func (s *Side) Add(o *order.Order) {
	if _, exists := s.orderPrice[o.ID]; exists {
		return
	}
	price := o.PriceTicks
	level, found := s.index.find(price)
	if !found {
		level = newPriceLevel(price)
		s.index.insert(price, level)
	}
	level.push(o)
	s.orderPrice[o.ID] = price
	s.totalOrders++
	s.refreshBest()
}

// Remove finds the order's price, pops it from that level, deletes the
// level if it becomes empty, and refreshes the best-price cache. Returns
// the removed order, or (nil, false) if absent.
func (s *Side) Remove(id string) (*order.Order, bool) {
	price, ok := s.orderPrice[id]
	if !ok {
		return nil, false
	}
	level, found := s.index.find(price)
	if !found {
		delete(s.orderPrice, id)
		return nil, false
	}
	o, isEmpty := level.remove(id)
	delete(s.orderPrice, id)
	if o != nil {
		s.totalOrders--
	}
	if isEmpty {
		s.index.delete(price)
	}
	s.refreshBest()
	return o, o != nil
}

// UpdateRemaining rewrites a resident's remaining quantity. If
// newRemaining <= 0 this is equivalent to Remove.
func (s *Side) UpdateRemaining(id string, newRemaining int64) {
	if newRemaining <= 0 {
		s.Remove(id)
		return
	}
	price, ok := s.orderPrice[id]
	if !ok {
		return
	}
	level, found := s.index.find(price)
	if !found {
		return
	}
	for _, resident := range level.residents() {
		if resident.ID == id {
			level.updateRemaining(resident, newRemaining)
			return
		}
	}
}

// BestLevel returns the level at the side's cached best price, or nil if
// the side is empty. The level itself is not cached: each call looks it
// up in the price index, which is O(log n) in the number of levels.
func (s *Side) BestLevel() *PriceLevel {
	if !s.hasBest {
		return nil
	}
	level, found := s.index.find(s.bestPrice)
	if !found {
		return nil
	}
	return level
}

func (s *Side) BestPrice() (int64, bool) {
	return s.bestPrice, s.hasBest
}

// IterateFromBest yields nonempty levels in best-to-worst order. Levels
// builds its snapshot view on the same underlying call, so production
// reads go through Levels; IterateFromBest is the lower-level primitive
// for callers that need the PriceLevels themselves rather than a
// flattened view; nothing in the repository calls it at present.
func (s *Side) IterateFromBest() []*PriceLevel {
	return s.index.levelsBestToWorst()
}

// Levels returns up to max aggregated (price, quantity, order_count)
// triples from best to worst, for snapshots.
func (s *Side) Levels(max int) []LevelView {
	levels := s.index.levelsBestToWorst()
	if max > 0 && len(levels) > max {
		levels = levels[:max]
	}
	out := make([]LevelView, len(levels))
	for i, l := range levels {
		out[i] = LevelView{Price: l.Price, Quantity: l.TotalQuantity, OrderCount: l.OrderCount}
	}
	return out
}

func (s *Side) Empty() bool {
	return s.index.empty()
}

func (s *Side) TotalOrders() int {
	return s.totalOrders
}

func (s *Side) refreshBest() {
	best := s.index.best()
	if best == nil {
		s.hasBest = false
		s.bestPrice = 0
		return
	}
	s.hasBest = true
	s.bestPrice = best.Price
}

// LevelView is an aggregated, read-only view of one price level.
type LevelView struct {
	Price      int64 `json:"price"`
	Quantity   int64 `json:"quantity"`
	OrderCount int   `json:"order_count"`
}
