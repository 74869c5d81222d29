// Package market pairs the two per-outcome order books (YES and NO) that
// make up one prediction market.
package market

import (
	"sync"

	"outcomex/internal/book"
	"outcomex/internal/order"
)

// Market owns one order book per outcome token and the mutex that
// serializes every placement/cancellation against either of them end to
// end (a per-market lock is sufficient for correctness because
// the books of different markets share only the ledger).
type Market struct {
	ID string

	mu   sync.Mutex
	yes  *book.OrderBook
	no   *book.OrderBook
}

func New(id string) *Market {
	return &Market{
		ID:  id,
		yes: book.New(id, order.Yes),
		no:  book.New(id, order.No),
	}
}

// Book returns the order book for the given outcome.
func (m *Market) Book(outcome order.Outcome) *book.OrderBook {
	if outcome == order.Yes {
		return m.yes
	}
	return m.no
}

// Lock/Unlock serialize every engine operation touching this market's
// books (placement, matching, cancellation).
func (m *Market) Lock()   { m.mu.Lock() }
func (m *Market) Unlock() { m.mu.Unlock() }
