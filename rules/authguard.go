package rules

import (
	"fmt"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
)

// AuthLockoutReason marks lockouts installed by AuthGuard so that only its
// own lockout is auto-cleared when trading permission returns.
const AuthLockoutReason = "broker trading permission revoked"

// AuthGuard mirrors the broker's canTrade flag. Revocation flattens the
// account and installs a permanent lockout (nil expiry) that only the broker
// restoring permission, or a manual admin clear, removes.
type AuthGuard struct{}

func (r *AuthGuard) Name() string { return string(KindAuthGuard) }

func (r *AuthGuard) Evaluate(ev event.Event, deps Deps) (Verdict, error) {
	if ev.Kind != event.AccountStatusChanged {
		return Verdict{Rule: r.Name()}, nil
	}

	if !ev.Status.CanTrade {
		reason := AuthLockoutReason
		if ev.Status.Reason != "" {
			reason = fmt.Sprintf("%s: %s", AuthLockoutReason, ev.Status.Reason)
		}
		return Verdict{
			Rule:         r.Name(),
			Breached:     true,
			Action:       CloseAll,
			CancelOrders: true,
			Reason:       reason,
			Lockout: &LockoutDirective{
				Kind:   lockout.Hard,
				Until:  nil, // permanent
				Reason: reason,
			},
		}, nil
	}

	// Permission restored: clear our lockout if it is the active one.
	if lk := deps.Lockouts.Info(ev.AccountID, ""); lk != nil && hasAuthReason(lk.Reason) {
		return Verdict{
			Rule:  r.Name(),
			Clear: &ClearDirective{Symbol: ""},
		}, nil
	}
	return Verdict{Rule: r.Name()}, nil
}

func hasAuthReason(reason string) bool {
	return len(reason) >= len(AuthLockoutReason) && reason[:len(AuthLockoutReason)] == AuthLockoutReason
}
