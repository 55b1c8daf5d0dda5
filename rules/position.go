package rules

import (
	"fmt"
	"math"

	"github.com/rustyeddy/riskgate/event"
)

// MaxPosition caps the net position size per symbol. Trade-by-trade
// enforcement: the offending position is reduced back to the limit, no
// lockout.
type MaxPosition struct {
	Limit     float64            // default per-symbol cap, in units
	PerSymbol map[string]float64 // overrides
}

func (r *MaxPosition) Name() string { return string(KindMaxPosition) }

func (r *MaxPosition) limitFor(symbol string) float64 {
	if lim, ok := r.PerSymbol[symbol]; ok {
		return lim
	}
	return r.Limit
}

func (r *MaxPosition) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.PositionChanged {
		return Verdict{Rule: r.Name()}, nil
	}

	units := ev.Position.Units
	lim := r.limitFor(ev.Symbol)
	if lim <= 0 || math.Abs(units) <= lim {
		return Verdict{Rule: r.Name()}, nil
	}

	target := lim
	if units < 0 {
		target = -lim
	}
	return Verdict{
		Rule:        r.Name(),
		Breached:    true,
		Action:      ReduceToLimit,
		Symbol:      ev.Symbol,
		TargetUnits: target,
		Reason:      fmt.Sprintf("position %.0f exceeds limit %.0f on %s", units, lim, ev.Symbol),
	}, nil
}

// MaxTotalPosition caps gross exposure summed across every symbol. The
// position whose change pushed the total over is closed.
type MaxTotalPosition struct {
	Limit float64

	net map[string]float64 // last known net size per symbol
}

func (r *MaxTotalPosition) Name() string { return string(KindMaxTotalPosition) }

func (r *MaxTotalPosition) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.PositionChanged {
		return Verdict{Rule: r.Name()}, nil
	}
	if r.net == nil {
		r.net = make(map[string]float64)
	}

	if ev.Position.Units == 0 {
		delete(r.net, ev.Symbol)
	} else {
		r.net[ev.Symbol] = ev.Position.Units
	}

	var gross float64
	for _, u := range r.net {
		gross += math.Abs(u)
	}
	if r.Limit <= 0 || gross <= r.Limit {
		return Verdict{Rule: r.Name()}, nil
	}

	return Verdict{
		Rule:     r.Name(),
		Breached: true,
		Action:   CloseSymbol,
		Symbol:   ev.Symbol,
		Reason:   fmt.Sprintf("gross exposure %.0f exceeds limit %.0f", gross, r.Limit),
	}, nil
}
