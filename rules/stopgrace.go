package rules

import (
	"time"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/timer"
)

// StopGraceTimerPrefix names the grace timers this rule arms; the engine's
// timer dispatch recognizes the check_stop action they carry.
const StopGraceTimerPrefix = "stop_grace:"

// StopLossGrace gives a fresh position a grace window to receive a stop
// order. The timer's expiry action re-queries open orders and closes the
// symbol if no stop exists; trade-by-trade enforcement, no lockout. The
// close decision lives in the engine's expiry handler because it needs the
// broker's order book; the rule only arms and disarms the timer.
type StopLossGrace struct {
	Grace time.Duration

	open map[string]bool
}

func (r *StopLossGrace) Name() string { return string(KindStopLossGrace) }

func (r *StopLossGrace) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.PositionChanged {
		return Verdict{Rule: r.Name()}, nil
	}
	if r.open == nil {
		r.open = make(map[string]bool)
	}

	name := StopGraceTimerPrefix + ev.Symbol
	switch {
	case ev.Position.Units != 0 && !r.open[ev.Symbol]:
		r.open[ev.Symbol] = true
		if err := deps.Timers.Start(ev.AccountID, name, r.Grace, timer.Action{
			Kind:   timer.ActionCheckStop,
			Symbol: ev.Symbol,
		}); err != nil {
			return Verdict{Rule: r.Name()}, err
		}
	case ev.Position.Units == 0 && r.open[ev.Symbol]:
		delete(r.open, ev.Symbol)
		if err := deps.Timers.Cancel(ev.AccountID, name); err != nil {
			return Verdict{Rule: r.Name()}, err
		}
	}

	return Verdict{Rule: r.Name()}, nil
}
