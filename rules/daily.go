package rules

import (
	"fmt"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
)

// DailyLoss halts the day once realized losses reach the limit: close all,
// cancel orders, hard lockout until the next session reset.
type DailyLoss struct {
	Limit float64 // negative, e.g. -500
}

func (r *DailyLoss) Name() string { return string(KindDailyLoss) }

func (r *DailyLoss) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.TradeExecuted || ev.Trade.RealizedPL == nil {
		return Verdict{Rule: r.Name()}, nil
	}

	total, _, err := deps.PnL.GetDaily(ev.AccountID)
	if err != nil {
		return Verdict{Rule: r.Name()}, fmt.Errorf("%s: %w", r.Name(), err)
	}
	if total > r.Limit {
		return Verdict{Rule: r.Name()}, nil
	}

	until := deps.Calendar.NextReset(ev.Time)
	reason := fmt.Sprintf("daily realized pnl %.2f breached loss limit %.2f", total, r.Limit)
	return Verdict{
		Rule:         r.Name(),
		Breached:     true,
		Action:       CloseAll,
		CancelOrders: true,
		Reason:       reason,
		Lockout: &LockoutDirective{
			Kind:   lockout.Hard,
			Until:  &until,
			Reason: reason,
		},
	}, nil
}

// DailyProfit locks in the day once the realized target is hit. Same
// enforcement shape as DailyLoss: the account is done for the day either
// way.
type DailyProfit struct {
	Target float64 // positive
}

func (r *DailyProfit) Name() string { return string(KindDailyProfit) }

func (r *DailyProfit) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.TradeExecuted || ev.Trade.RealizedPL == nil {
		return Verdict{Rule: r.Name()}, nil
	}

	total, _, err := deps.PnL.GetDaily(ev.AccountID)
	if err != nil {
		return Verdict{Rule: r.Name()}, fmt.Errorf("%s: %w", r.Name(), err)
	}
	if total < r.Target {
		return Verdict{Rule: r.Name()}, nil
	}

	until := deps.Calendar.NextReset(ev.Time)
	reason := fmt.Sprintf("daily realized pnl %.2f reached profit target %.2f", total, r.Target)
	return Verdict{
		Rule:         r.Name(),
		Breached:     true,
		Action:       CloseAll,
		CancelOrders: true,
		Reason:       reason,
		Lockout: &LockoutDirective{
			Kind:   lockout.Hard,
			Until:  &until,
			Reason: reason,
		},
	}, nil
}
