package event

import "time"

// Kind is the internal event vocabulary. Broker adapters translate their
// native shapes into exactly these four kinds; nothing downstream ever sees
// an SDK type.
type Kind int

const (
	TradeExecuted Kind = iota
	PositionChanged
	OrderChanged
	AccountStatusChanged
)

func (k Kind) String() string {
	switch k {
	case TradeExecuted:
		return "TradeExecuted"
	case PositionChanged:
		return "PositionChanged"
	case OrderChanged:
		return "OrderChanged"
	case AccountStatusChanged:
		return "AccountStatusChanged"
	default:
		return "Unknown"
	}
}

// Event is an immutable record handed to the engine. Exactly one of the
// payload pointers is set, matching Kind.
type Event struct {
	ID        string
	Kind      Kind
	AccountID string
	Symbol    string // empty for account-level events
	Time      time.Time

	Trade    *TradePayload
	Position *PositionPayload
	Order    *OrderPayload
	Status   *StatusPayload
}

// TradePayload describes a fill. RealizedPL is nil for half-turn (opening)
// fills; only closing fills carry a realized component.
type TradePayload struct {
	TradeID    string
	Units      float64 // signed; positive = buy
	Price      float64
	RealizedPL *float64
}

// PositionPayload is the broker's post-change view of the net position.
// Units == 0 means the position is flat.
type PositionPayload struct {
	Units        float64 // signed net size
	AvgPrice     float64
	UnrealizedPL float64
}

// OrderStatus mirrors the small subset of order lifecycle states the rules
// care about.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type OrderPayload struct {
	OrderID string
	Type    string // broker order type, e.g. "STOP", "LIMIT"
	Status  OrderStatus
	Units   float64
	Price   float64
}

type StatusPayload struct {
	CanTrade bool
	Reason   string
}
