package rules

import (
	"fmt"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/sched"
)

// SessionHours flattens the account outside the configured trading window.
// Holidays count as "session never opens". The lockout runs until the next
// valid session start, skipping weekends and holidays, computed once at
// breach time.
type SessionHours struct {
	Session sched.Session
}

func (r *SessionHours) Name() string { return string(KindSessionHours) }

func (r *SessionHours) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	switch ev.Kind {
	case event.TradeExecuted, event.PositionChanged:
	default:
		return Verdict{Rule: r.Name()}, nil
	}

	if r.Session.Contains(ev.Time, deps.Calendar.IsHoliday) {
		return Verdict{Rule: r.Name()}, nil
	}

	until := r.Session.NextStart(ev.Time, deps.Calendar.IsHoliday)
	reason := fmt.Sprintf("activity outside session hours %s-%s", r.Session.Start, r.Session.End)
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
