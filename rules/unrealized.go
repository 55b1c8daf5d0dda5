package rules

import (
	"fmt"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
)

// Scope selects what an unrealized-P&L breach closes. Source requirements
// conflict on this, so both behaviors are configuration.
type Scope string

const (
	ScopeAll      Scope = "all"      // close everything
	ScopePosition Scope = "position" // close only the triggering position
)

// UnrealizedLoss watches open-position drawdown, summed across symbols.
// Whether a breach closes everything and locks the account, or only closes
// the triggering position, is configurable per the conflicting source
// requirements; the default leans restrictive (close all, lock out).
type UnrealizedLoss struct {
	Limit      float64 // negative
	Scope      Scope
	SetLockout bool

	unrealized map[string]float64
}

func (r *UnrealizedLoss) Name() string { return string(KindUnrealizedLoss) }

func (r *UnrealizedLoss) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	total, ok := trackUnrealized(&r.unrealized, ev)
	if !ok || r.Limit >= 0 || total > r.Limit {
		return Verdict{Rule: r.Name()}, nil
	}

	reason := fmt.Sprintf("open pnl %.2f breached unrealized loss limit %.2f", total, r.Limit)
	return unrealizedVerdict(r.Name(), reason, ev, deps, r.Scope, r.SetLockout), nil
}

// UnrealizedProfit banks open profit once it reaches the target, with the
// same configurable scope as UnrealizedLoss.
type UnrealizedProfit struct {
	Target     float64 // positive
	Scope      Scope
	SetLockout bool

	unrealized map[string]float64
}

func (r *UnrealizedProfit) Name() string { return string(KindUnrealizedProfit) }

func (r *UnrealizedProfit) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	total, ok := trackUnrealized(&r.unrealized, ev)
	if !ok || r.Target <= 0 || total < r.Target {
		return Verdict{Rule: r.Name()}, nil
	}

	reason := fmt.Sprintf("open pnl %.2f reached unrealized profit target %.2f", total, r.Target)
	return unrealizedVerdict(r.Name(), reason, ev, deps, r.Scope, r.SetLockout), nil
}

// trackUnrealized updates the per-symbol open P&L map from a position event
// and returns the new account total. ok is false for non-position events.
func trackUnrealized(m *map[string]float64, ev event.Event) (float64, bool) {
	if ev.Kind != event.PositionChanged {
		return 0, false
	}
	if *m == nil {
		*m = make(map[string]float64)
	}
	if ev.Position.Units == 0 {
		delete(*m, ev.Symbol)
	} else {
		(*m)[ev.Symbol] = ev.Position.UnrealizedPL
	}

	var total float64
	for _, pl := range *m {
		total += pl
	}
	return total, true
}

func unrealizedVerdict(rule, reason string, ev event.Event, deps Deps, scope Scope, setLockout bool) Verdict {
	v := Verdict{
		Rule:     rule,
		Breached: true,
		Reason:   reason,
	}
	switch scope {
	case ScopePosition:
		v.Action = CloseSymbol
		v.Symbol = ev.Symbol
		if setLockout {
			until := deps.Calendar.NextReset(ev.Time)
			v.Lockout = &LockoutDirective{
				Kind:   lockout.Hard,
				Symbol: ev.Symbol,
				Until:  &until,
				Reason: reason,
			}
		}
	default: // ScopeAll
		v.Action = CloseAll
		v.CancelOrders = true
		if setLockout {
			until := deps.Calendar.NextReset(ev.Time)
			v.Lockout = &LockoutDirective{
				Kind:   lockout.Hard,
				Until:  &until,
				Reason: reason,
			}
		}
	}
	return v
}
