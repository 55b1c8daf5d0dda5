package rules

import (
	"time"

	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/pnl"
	"github.com/rustyeddy/riskgate/timer"
)

// Calendar is the slice of the reset scheduler rules need: holiday checks
// and the unlock moment for reset-bound lockouts.
type Calendar interface {
	IsHoliday(time.Time) bool
	NextReset(time.Time) time.Time
}

// Deps hands each rule the managers it may read. Rules never touch storage
// directly; every durable read goes through the owning manager.
type Deps struct {
	PnL      *pnl.Accumulator
	Lockouts *lockout.Manager
	Timers   *timer.Manager
	Calendar Calendar
}

// Action is what the engine should do about a verdict, ordered from least
// to most disruptive.
type Action int

const (
	NoAction Action = iota
	ModifyStop
	ReduceToLimit
	CloseSymbol
	CloseAll
)

func (a Action) String() string {
	switch a {
	case ModifyStop:
		return "modify-stop"
	case ReduceToLimit:
		return "reduce"
	case CloseSymbol:
		return "close"
	case CloseAll:
		return "close-all"
	default:
		return "none"
	}
}

// LockoutDirective asks the executor to install a lockout after the broker
// action succeeds. Hard lockouts carry Until (nil = permanent); cooldowns
// carry Duration.
type LockoutDirective struct {
	Kind     lockout.Kind
	Symbol   string // empty = account-wide
	Until    *time.Time
	Duration time.Duration
	Reason   string
}

// ClearDirective asks the engine to clear a lockout (auth restored).
type ClearDirective struct {
	Symbol string
}

// Verdict is the transient output of one rule evaluation, consumed
// immediately by the engine.
type Verdict struct {
	Rule     string
	Breached bool
	Action   Action
	Symbol   string // target for CloseSymbol / ReduceToLimit / ModifyStop

	TargetUnits  float64 // ReduceToLimit
	StopPrice    float64 // ModifyStop
	CancelOrders bool

	Reason  string
	Lockout *LockoutDirective
	Clear   *ClearDirective
}

// Rule is the single contract every rule satisfies. Evaluation must be
// synchronous and free of broker calls; enforcement happens downstream.
type Rule interface {
	Name() string
	Evaluate(ev event.Event, deps Deps) (Verdict, error)
}

// Initializer is implemented by rules that install state at startup, e.g.
// static symbol blocks.
type Initializer interface {
	Init(accountID string, deps Deps) error
}

func severity(v Verdict) int {
	if v.Lockout != nil {
		switch {
		case v.Lockout.Kind == lockout.Hard && v.Lockout.Until == nil:
			return 7
		case v.Lockout.Kind == lockout.Hard:
			return 6
		default:
			return 5
		}
	}
	switch v.Action {
	case CloseAll:
		return 4
	case CloseSymbol:
		return 3
	case ReduceToLimit:
		return 2
	case ModifyStop:
		return 1
	default:
		return 0
	}
}

// MoreRestrictive picks the winning verdict when several rules fire on one
// event: hard lockout > cooldown > close-all > close > reduce > stop
// adjustment. Deterministic: on a tie the earlier verdict (rule order) wins.
func MoreRestrictive(a, b Verdict) Verdict {
	if severity(b) > severity(a) {
		return b
	}
	return a
}
