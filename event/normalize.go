package event

import (
	"github.com/rustyeddy/riskgate/broker"
	"github.com/rustyeddy/riskgate/internal/id"
)

// Normalizer translates broker stream shapes into the internal vocabulary.
// It is pure translation: no state, no filtering, no policy.
type Normalizer struct {
	AccountID string
}

func NewNormalizer(accountID string) *Normalizer {
	return &Normalizer{AccountID: accountID}
}

func (n *Normalizer) FromFill(f broker.Fill) Event {
	return Event{
		ID:        id.New(),
		Kind:      TradeExecuted,
		AccountID: n.AccountID,
		Symbol:    f.Symbol,
		Time:      f.Time,
		Trade: &TradePayload{
			TradeID:    f.TradeID,
			Units:      f.Units,
			Price:      f.Price,
			RealizedPL: f.RealizedPL,
		},
	}
}

func (n *Normalizer) FromPosition(p broker.PositionUpdate) Event {
	return Event{
		ID:        id.New(),
		Kind:      PositionChanged,
		AccountID: n.AccountID,
		Symbol:    p.Symbol,
		Time:      p.Time,
		Position: &PositionPayload{
			Units:        p.Units,
			AvgPrice:     p.AvgPrice,
			UnrealizedPL: p.UnrealizedPL,
		},
	}
}

func (n *Normalizer) FromOrder(o broker.OrderUpdate) Event {
	return Event{
		ID:        id.New(),
		Kind:      OrderChanged,
		AccountID: n.AccountID,
		Symbol:    o.Symbol,
		Time:      o.Time,
		Order: &OrderPayload{
			OrderID: o.OrderID,
			Type:    o.Type,
			Status:  OrderStatus(o.Status),
			Units:   o.Units,
			Price:   o.Price,
		},
	}
}

func (n *Normalizer) FromAccountStatus(s broker.AccountStatus) Event {
	return Event{
		ID:        id.New(),
		Kind:      AccountStatusChanged,
		AccountID: n.AccountID,
		Time:      s.Time,
		Status: &StatusPayload{
			CanTrade: s.CanTrade,
			Reason:   s.Reason,
		},
	}
}
