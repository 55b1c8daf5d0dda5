package rules

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
)

// TradeFrequency caps how many trades may execute in the last minute, the
// last hour, and the whole session. The breaching trade itself is already
// filled and is not reversed; the rule installs a cooldown so the next one
// cannot happen. Windows are checked smallest first and the matching
// window's cooldown is installed.
type TradeFrequency struct {
	PerMinute  int // 0 disables the window
	PerHour    int
	PerSession int

	CooldownMinute  time.Duration
	CooldownHour    time.Duration
	CooldownSession time.Duration

	stamps []time.Time

	// Session fills are counted here so opening fills count too; the
	// accumulator only persists realized (closing) fills and serves as
	// the floor after a restart.
	sessionDay   string
	sessionCount int
}

func (r *TradeFrequency) Name() string { return string(KindTradeFrequency) }

func (r *TradeFrequency) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.TradeExecuted {
		return Verdict{Rule: r.Name()}, nil
	}

	r.stamps = append(r.stamps, ev.Time)
	cutoff := ev.Time.Add(-time.Hour)
	for len(r.stamps) > 0 && r.stamps[0].Before(cutoff) {
		r.stamps = r.stamps[1:]
	}

	if day := ev.Time.Format("2006-01-02"); day != r.sessionDay {
		r.sessionDay = day
		r.sessionCount = 0
	}
	r.sessionCount++

	if r.PerMinute > 0 {
		n := r.countSince(ev.Time.Add(-time.Minute))
		if n > r.PerMinute {
			return r.cooldownVerdict(
				fmt.Sprintf("%d trades in 60s exceeds cap %d", n, r.PerMinute),
				r.CooldownMinute,
			), nil
		}
	}

	if r.PerHour > 0 {
		n := r.countSince(ev.Time.Add(-time.Hour))
		if n > r.PerHour {
			return r.cooldownVerdict(
				fmt.Sprintf("%d trades in 3600s exceeds cap %d", n, r.PerHour),
				r.CooldownHour,
			), nil
		}
	}

	if r.PerSession > 0 {
		count := r.sessionCount
		_, persisted, err := deps.PnL.GetDaily(ev.AccountID)
		if err != nil {
			return Verdict{Rule: r.Name()}, fmt.Errorf("%s: %w", r.Name(), err)
		}
		// The accumulator already holds this fill when it closed a
		// trade; an opening fill is not in it yet.
		if ev.Trade.RealizedPL == nil {
			persisted++
		}
		if persisted > count {
			count = persisted
		}
		if count > r.PerSession {
			return r.cooldownVerdict(
				fmt.Sprintf("%d trades this session exceeds cap %d", count, r.PerSession),
				r.CooldownSession,
			), nil
		}
	}

	return Verdict{Rule: r.Name()}, nil
}

func (r *TradeFrequency) countSince(t time.Time) int {
	n := 0
	for _, s := range r.stamps {
		if !s.Before(t) {
			n++
		}
	}
	return n
}

func (r *TradeFrequency) cooldownVerdict(reason string, d time.Duration) Verdict {
	return Verdict{
		Rule:     r.Name(),
		Breached: true,
		Reason:   reason,
		Lockout: &LockoutDirective{
			Kind:     lockout.Cooldown,
			Duration: d,
			Reason:   reason,
		},
	}
}
