package book

import "outcomex/internal/order"

// PriceLevel holds every resident order at a single immutable price, in
// arrival order, with cached aggregates so the matching loop and snapshot
// path never need to re-sum the queue (invariant:
// TotalQuantity == sum of residents' remaining, OrderCount == len(residents)).
type PriceLevel struct {
	Price         int64
	queue         *residentQueue
	TotalQuantity int64
	OrderCount    int
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price, queue: newResidentQueue()}
}

func (l *PriceLevel) push(o *order.Order) {
	l.queue.push(o)
	l.TotalQuantity += o.RemainingQuantity
	l.OrderCount++
}

// remove removes the resident by id, updating the cached aggregates, and
// reports whether the level is now empty (and therefore removable from
// the price index).
func (l *PriceLevel) remove(id string) (*order.Order, bool) {
	o := l.queue.remove(id)
	if o == nil {
		return nil, l.queue.empty()
	}
	l.TotalQuantity -= o.RemainingQuantity
	l.OrderCount--
	return o, l.queue.empty()
}

// updateRemaining rewrites the resident's remaining quantity, adjusting
// the cached total by the delta. Callers must remove the order (via
// remove) rather than call this when newRemaining <= 0.
func (l *PriceLevel) updateRemaining(o *order.Order, newRemaining int64) {
	delta := newRemaining - o.RemainingQuantity
	o.RemainingQuantity = newRemaining
	l.TotalQuantity += delta
}

func (l *PriceLevel) peekFront() *order.Order {
	return l.queue.peekFront()
}

// popFront is the direct FIFO-dequeue primitive for a level: pop without
// knowing the resident's ID first. The match path in engine always knows
// the peeked order's ID (from Next) and removes by ID instead, so this is
// currently reached only from book tests exercising the queue directly;
// kept because the level's FIFO contract is part of the book's surface,
// not because something still calls it in production.
func (l *PriceLevel) popFront() *order.Order {
	o := l.queue.popFront()
	if o != nil {
		l.TotalQuantity -= o.RemainingQuantity
		l.OrderCount--
	}
	return o
}

func (l *PriceLevel) residents() []*order.Order {
	return l.queue.iterate()
}

func (l *PriceLevel) empty() bool {
	return l.queue.empty()
}
