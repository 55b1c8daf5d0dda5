package rules

import (
	"fmt"
	"math"

	"github.com/rustyeddy/riskgate/event"
)

// TrailingStop is automation only: once a position's best profit per unit
// exceeds Activate, the stop order is walked up to trail the peak by
// Distance (in price terms). It never closes anything and never locks the
// account; it rides the same event pipeline purely for subscription
// convenience.
type TrailingStop struct {
	Activate float64 // profit per unit required before trailing starts
	Distance float64 // price distance between peak and stop

	peak map[string]float64 // best profit-per-unit seen per symbol
}

func (r *TrailingStop) Name() string { return string(KindTrailingStop) }

func (r *TrailingStop) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.PositionChanged {
		return Verdict{Rule: r.Name()}, nil
	}
	if r.peak == nil {
		r.peak = make(map[string]float64)
	}

	units := ev.Position.Units
	if units == 0 {
		delete(r.peak, ev.Symbol)
		return Verdict{Rule: r.Name()}, nil
	}

	ppu := ev.Position.UnrealizedPL / math.Abs(units)
	if ppu > r.peak[ev.Symbol] {
		r.peak[ev.Symbol] = ppu
	}
	peak := r.peak[ev.Symbol]
	if peak < r.Activate {
		return Verdict{Rule: r.Name()}, nil
	}

	// Trail the stop Distance behind the peak, on the protective side of
	// the entry.
	var stop float64
	if units > 0 {
		stop = ev.Position.AvgPrice + peak - r.Distance
	} else {
		stop = ev.Position.AvgPrice - peak + r.Distance
	}

	return Verdict{
		Rule:      r.Name(),
		Action:    ModifyStop,
		Symbol:    ev.Symbol,
		StopPrice: stop,
		Reason:    fmt.Sprintf("trailing stop on %s: peak %.5f, distance %.5f", ev.Symbol, peak, r.Distance),
	}, nil
}
