// Package order defines the data model shared by the order book and the
// matching engine: orders, their side/outcome/type/status enums, and the
// trade records executions produce.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an order.
type Status int

const (
	Open Status = iota
	Partial
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Partial:
		return "PARTIAL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "OPEN":
		*s = Open
	case "PARTIAL":
		*s = Partial
	case "FILLED":
		*s = Filled
	case "CANCELLED":
		*s = Cancelled
	default:
		return fmt.Errorf("unknown status: %s", data)
	}
	return nil
}

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "BUY":
		*s = Buy
	case "SELL":
		*s = Sell
	default:
		return fmt.Errorf("unknown side: %s", data)
	}
	return nil
}

// Outcome is the binary token an order is placed against.
type Outcome int

const (
	Yes Outcome = iota
	No
)

func (o Outcome) String() string {
	if o == Yes {
		return "YES"
	}
	return "NO"
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "YES":
		*o = Yes
	case "NO":
		*o = No
	default:
		return fmt.Errorf("unknown outcome: %s", data)
	}
	return nil
}

// Type distinguishes resting limit orders from sweep-and-cancel market orders.
type Type int

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Type) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "LIMIT":
		*t = Limit
	case "MARKET":
		*t = Market
	default:
		return fmt.Errorf("unknown order type: %s", data)
	}
	return nil
}

func unquote(data []byte) string {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Order is a single agent order, resident on the book while remaining > 0
// and of type LIMIT, terminal otherwise.
type Order struct {
	ID        string `json:"order_id"`
	AgentID   string `json:"agent_id"`
	Market    string `json:"market"`
	Side      Side   `json:"side"`
	Outcome   Outcome `json:"outcome"`
	Type      Type   `json:"type"`

	// PriceTicks is present iff Type == Limit; absent (0) for MARKET orders.
	PriceTicks int64 `json:"price_ticks,omitempty"`

	OriginalQuantity  int64 `json:"original_quantity"`
	FilledQuantity    int64 `json:"filled_quantity"`
	RemainingQuantity int64 `json:"remaining_quantity"`

	// LockedAmount is the escrow currently reserved for this order. It is
	// drawn down fill-by-fill (see engine.executeTrade) so that it always
	// equals exactly the reservation backing RemainingQuantity.
	LockedAmount decimal.Decimal `json:"locked_amount"`

	Status       Status          `json:"status"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`

	ClientOrderID string            `json:"client_order_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
}

// New constructs an OPEN order with remaining == original and zero fills.
func New(id, agentID, market string, side Side, outcome Outcome, typ Type, priceTicks, quantity int64, clientOrderID string, metadata map[string]string) *Order {
	now := time.Now()
	return &Order{
		ID:                id,
		AgentID:           agentID,
		Market:            market,
		Side:              side,
		Outcome:           outcome,
		Type:              typ,
		PriceTicks:        priceTicks,
		OriginalQuantity:  quantity,
		FilledQuantity:    0,
		RemainingQuantity: quantity,
		Status:            Open,
		ClientOrderID:     clientOrderID,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("Order[ID:%s Market:%s/%s Side:%s Type:%s Price:%d Qty:%d/%d Status:%s]",
		o.ID, o.Market, o.Outcome, o.Side, o.Type, o.PriceTicks, o.RemainingQuantity, o.OriginalQuantity, o.Status)
}

// IsResting reports whether the order should be resident on a book: a LIMIT
// order with remaining quantity left and a non-terminal status.
func (o *Order) IsResting() bool {
	return o.Type == Limit && o.RemainingQuantity > 0 && (o.Status == Open || o.Status == Partial)
}
