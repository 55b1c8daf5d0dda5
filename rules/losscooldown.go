package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
)

// Tier maps a single-trade loss threshold to a cooldown length. Threshold
// is negative; a trade P&L at or below it selects the tier.
type Tier struct {
	Threshold float64
	Duration  time.Duration
}

// LossCooldown benches the trader after a losing trade, scaled by how bad
// the loss was. Tiers are checked deepest loss first so a -250 trade against
// tiers (-100, -200, -300) selects the -200 tier.
type LossCooldown struct {
	Tiers []Tier
}

func (r *LossCooldown) Name() string { return string(KindLossCooldown) }

// SortTiers orders tiers deepest threshold first. Called once at build time.
func (r *LossCooldown) SortTiers() {
	sort.Slice(r.Tiers, func(i, j int) bool {
		return r.Tiers[i].Threshold < r.Tiers[j].Threshold
	})
}

func (r *LossCooldown) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.TradeExecuted || ev.Trade.RealizedPL == nil {
		return Verdict{Rule: r.Name()}, nil
	}
	pl := *ev.Trade.RealizedPL
	if pl >= 0 {
		return Verdict{Rule: r.Name()}, nil
	}

	for _, tier := range r.Tiers {
		if pl <= tier.Threshold {
			reason := fmt.Sprintf("trade pnl %.2f hit loss tier %.2f", pl, tier.Threshold)
			return Verdict{
				Rule:     r.Name(),
				Breached: true,
				Reason:   reason,
				Lockout: &LockoutDirective{
					Kind:     lockout.Cooldown,
					Duration: tier.Duration,
					Reason:   reason,
				},
			}, nil
		}
	}
	return Verdict{Rule: r.Name()}, nil
}
