package engine

import "errors"

var (
	// ErrInsufficientFunds is returned when the placement's required lock
	// is rejected by the ledger. No order is created, no event emitted.
	ErrInsufficientFunds = errors.New("insufficient funds for required escrow")

	// ErrInvalidPrice means the price is outside [tick, 1-tick] or is not
	// on the configured tick grid.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidQuantity means the requested quantity is non-positive.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrOrderNotFound is returned by CancelOrder when no resident order
	// matches the given id and agent. It is the one sentinel that marks an
	// absent result rather than a fault.
	ErrOrderNotFound = errors.New("order not found")
)

// InvariantError reports a broken internal invariant — a resting order
// missing its price, a negative remaining quantity, or similar. The
// engine must not continue a match cycle once one of these fires, since
// doing so risks moving ledger funds against a book that no longer
// agrees with its own bookkeeping.
type InvariantError struct {
	Where string
	Why   string
}

func (e *InvariantError) Error() string {
	return "invariant violation in " + e.Where + ": " + e.Why
}
