package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/rustyeddy/riskgate/broker"
	"github.com/rustyeddy/riskgate/internal/id"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/rules"
	"github.com/rustyeddy/riskgate/store"
)

const (
	maxAttempts    = 3
	attemptTimeout = 5 * time.Second
	backoffBase    = 500 * time.Millisecond
)

// Executor is the single choke point between verdicts and the broker. Every
// attempt, success or failure, produces an audit row, so an operator sees
// "breach detected, enforcement failed" rather than silence. On success the
// verdict's lockout is installed; on failure it is not, and the breach will
// be re-detected on the next event.
type Executor struct {
	accountID string
	broker    broker.Broker
	store     *store.Store
	lockouts  *lockout.Manager
	breaker   *gobreaker.CircuitBreaker
	nowFn     func() time.Time
}

func New(accountID string, b broker.Broker, st *store.Store, lk *lockout.Manager) *Executor {
	settings := gobreaker.Settings{Name: "broker"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Executor{
		accountID: accountID,
		broker:    b,
		store:     st,
		lockouts:  lk,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		nowFn:     time.Now,
	}
}

// SetNowFn overrides the time provider (useful for tests).
func (x *Executor) SetNowFn(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	x.nowFn = fn
}

// Execute carries out a verdict's broker action and, on success, its lockout
// directive. The two are atomic from the caller's point of view: either the
// broker action lands and the lockout is installed, or neither holds and the
// event path retries.
func (x *Executor) Execute(ctx context.Context, v rules.Verdict) error {
	if v.Action == rules.NoAction && v.Lockout == nil {
		return nil
	}

	if v.Action != rules.NoAction {
		if err := x.callWithRetry(ctx, v, v.Action.String()); err != nil {
			return err
		}
	}

	if v.CancelOrders {
		if err := x.callBrokerOp(ctx, "cancel-orders", v.Reason, v.Symbol, func(c context.Context) error {
			return x.broker.CancelOrders(c)
		}); err != nil {
			return err
		}
	}

	if v.Lockout != nil {
		if err := x.installLockout(v); err != nil {
			x.audit("lockout", v.Lockout.Symbol, v.Reason, fmt.Sprintf("failed: %v", err))
			return err
		}
	}
	return nil
}

func (x *Executor) callWithRetry(ctx context.Context, v rules.Verdict, action string) error {
	return x.callBrokerOp(ctx, action, v.Reason, v.Symbol, func(c context.Context) error {
		switch v.Action {
		case rules.CloseSymbol:
			return x.broker.ClosePosition(c, v.Symbol)
		case rules.CloseAll:
			return x.broker.CloseAll(c)
		case rules.ReduceToLimit:
			return x.broker.ReducePosition(c, v.Symbol, v.TargetUnits)
		case rules.ModifyStop:
			return x.broker.ModifyStop(c, v.Symbol, v.StopPrice)
		default:
			return nil
		}
	})
}

// callBrokerOp runs one broker operation through the circuit breaker with up
// to maxAttempts tries, exponential backoff between transient failures, and
// a bounded per-attempt timeout.
func (x *Executor) callBrokerOp(ctx context.Context, action, reason, symbol string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := x.breaker.Execute(func() (any, error) {
			c, cancel := context.WithTimeout(ctx, attemptTimeout)
			defer cancel()
			return nil, op(c)
		})
		if err == nil {
			x.audit(action, symbol, reason, "ok")
			return nil
		}
		lastErr = err

		if !broker.IsTransient(err) && err != gobreaker.ErrOpenState {
			x.audit(action, symbol, reason, fmt.Sprintf("failed: %v", err))
			return fmt.Errorf("enforce %s: %w", action, err)
		}

		x.audit(action, symbol, reason, fmt.Sprintf("retrying after: %v", err))
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}
	}

	x.audit(action, symbol, reason, fmt.Sprintf("failed after %d attempts: %v", maxAttempts, lastErr))
	return fmt.Errorf("enforce %s: %w", action, lastErr)
}

func (x *Executor) installLockout(v rules.Verdict) error {
	d := v.Lockout
	switch d.Kind {
	case lockout.Cooldown:
		if err := x.lockouts.SetCooldown(x.accountID, d.Symbol, d.Reason, d.Duration); err != nil {
			return err
		}
		x.audit("cooldown", d.Symbol, d.Reason, fmt.Sprintf("ok: %s", d.Duration))
	default:
		if err := x.lockouts.SetHard(x.accountID, d.Symbol, d.Reason, d.Until); err != nil {
			return err
		}
		result := "ok: permanent"
		if d.Until != nil {
			result = "ok: until " + d.Until.Format(time.RFC3339)
		}
		x.audit("hard-lockout", d.Symbol, d.Reason, result)
	}
	return nil
}

// audit writes the append-only record and the matching structured log line.
// Audit persistence failures are logged, never allowed to mask the
// enforcement result.
func (x *Executor) audit(action, symbol, reason, result string) {
	rec := store.AuditRecord{
		ID:        id.New(),
		Time:      x.nowFn(),
		AccountID: x.accountID,
		Action:    action,
		Symbol:    symbol,
		Reason:    reason,
		Result:    result,
	}
	if err := x.store.AppendAudit(rec); err != nil {
		log.Error().Err(err).
			Str("stage", "audit").
			Str("action", action).
			Msg("audit append failed")
	}

	log.Info().
		Str("stage", "enforcement").
		Str("account", x.accountID).
		Str("action", action).
		Str("symbol", symbol).
		Str("reason", reason).
		Str("result", result).
		Msg("enforcement attempt")
}
