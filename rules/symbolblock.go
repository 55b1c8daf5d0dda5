package rules

import (
	"fmt"

	"github.com/rustyeddy/riskgate/event"
)

// SymbolBlock is a static blacklist of instruments. Its lockouts are
// installed permanently at startup (nil expiry, so the daily reset never
// clears them) and any position that still appears on a blocked symbol is
// closed.
type SymbolBlock struct {
	Symbols []string

	blocked map[string]bool
}

func (r *SymbolBlock) Name() string { return string(KindSymbolBlock) }

// Init installs the permanent per-symbol lockouts. Re-running after a
// restart just replaces each lockout with an identical one.
func (r *SymbolBlock) Init(accountID string, deps Deps) error {
	r.blocked = make(map[string]bool, len(r.Symbols))
	for _, sym := range r.Symbols {
		r.blocked[sym] = true
		if err := deps.Lockouts.SetHard(accountID, sym, "symbol blocked by configuration", nil); err != nil {
			return fmt.Errorf("%s: %w", r.Name(), err)
		}
	}
	return nil
}

func (r *SymbolBlock) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.PositionChanged || ev.Position.Units == 0 || !r.blocked[ev.Symbol] {
		return Verdict{Rule: r.Name()}, nil
	}
	return Verdict{
		Rule:     r.Name(),
		Breached: true,
		Action:   CloseSymbol,
		Symbol:   ev.Symbol,
		Reason:   fmt.Sprintf("position opened on blocked symbol %s", ev.Symbol),
	}, nil
}
