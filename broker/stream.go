package broker

import "time"

// Stream shapes delivered by a broker adapter. The adapter owns reconnection
// and SDK translation; these are the only inbound types the rest of the
// system accepts.

// Fill reports an executed trade. RealizedPL is nil for opening (half-turn)
// fills.
type Fill struct {
	TradeID    string
	Symbol     string
	Units      float64
	Price      float64
	RealizedPL *float64
	Time       time.Time
}

// PositionUpdate is the post-change net position for one symbol.
type PositionUpdate struct {
	Symbol       string
	Units        float64
	AvgPrice     float64
	UnrealizedPL float64
	Time         time.Time
}

type OrderUpdate struct {
	OrderID string
	Symbol  string
	Type    string
	Status  string
	Units   float64
	Price   float64
	Time    time.Time
}

type AccountStatus struct {
	CanTrade bool
	Reason   string
	Time     time.Time
}
