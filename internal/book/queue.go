package book

import (
	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"outcomex/internal/order"
)

// residentQueue is the FIFO of orders resident at a single price level,
// backed by gods' doubly linked list: Append is the O(1) push, Get(0)+
// Remove(0) is the O(1) pop-front, and an iterator scan plus Remove is the
// O(k) targeted removal, used both for cancellation and for taking a
// fully filled maker off its level.
type residentQueue struct {
	list *doublylinkedlist.List
}

func newResidentQueue() *residentQueue {
	return &residentQueue{list: doublylinkedlist.New()}
}

// push appends order o to the tail. Precondition: o.ID is not already
// resident (callers enforce this via the side's orderID index).
func (q *residentQueue) push(o *order.Order) {
	q.list.Append(o)
}

// popFront removes and returns the head, or nil if empty.
func (q *residentQueue) popFront() *order.Order {
	v, found := q.list.Get(0)
	if !found {
		return nil
	}
	q.list.Remove(0)
	return v.(*order.Order)
}

// peekFront observes the head without removing it.
func (q *residentQueue) peekFront() *order.Order {
	v, found := q.list.Get(0)
	if !found {
		return nil
	}
	return v.(*order.Order)
}

// remove removes the resident with the given id, in O(k).
func (q *residentQueue) remove(id string) *order.Order {
	it := q.list.Iterator()
	for it.Next() {
		o := it.Value().(*order.Order)
		if o.ID == id {
			q.list.Remove(it.Index())
			return o
		}
	}
	return nil
}

// iterate yields residents in FIFO order.
func (q *residentQueue) iterate() []*order.Order {
	values := q.list.Values()
	out := make([]*order.Order, len(values))
	for i, v := range values {
		out[i] = v.(*order.Order)
	}
	return out
}

func (q *residentQueue) size() int {
	return q.list.Size()
}

func (q *residentQueue) empty() bool {
	return q.list.Empty()
}
