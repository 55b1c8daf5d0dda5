package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/riskgate/broker"
	"github.com/rustyeddy/riskgate/enforce"
	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/metrics"
	"github.com/rustyeddy/riskgate/pnl"
	"github.com/rustyeddy/riskgate/rules"
	"github.com/rustyeddy/riskgate/sched"
	"github.com/rustyeddy/riskgate/timer"
)

const (
	sweepPeriod = time.Second
	resetPeriod = time.Minute
)

// Options wires an Engine. All managers must share one store so restart
// recovery is per-manager with no cross-table reconciliation.
type Options struct {
	AccountID string
	Broker    broker.Broker
	Rules     []rules.Rule
	PnL       *pnl.Accumulator
	Lockouts  *lockout.Manager
	Timers    *timer.Manager
	Scheduler *sched.Scheduler
	Executor  *enforce.Executor
	Metrics   *metrics.Metrics
}

// job is one unit of asynchronous enforcement work. Exactly one field is
// set.
type job struct {
	verdict   *rules.Verdict
	stopCheck string // symbol whose grace period expired
}

// Engine owns the event loop. Events are processed one at a time; rule
// evaluation for an event is synchronous, so no two evaluations race. Broker
// calls are the only blocking work and run on a single worker, so no two
// enforcement actions for the account ever overlap; events arriving while
// one is in flight are held and replayed in order once it resolves.
type Engine struct {
	accountID string
	broker    broker.Broker
	rules     []rules.Rule
	deps      rules.Deps
	pnl       *pnl.Accumulator
	lockouts  *lockout.Manager
	timers    *timer.Manager
	sched     *sched.Scheduler
	exec      *enforce.Executor
	metrics   *metrics.Metrics

	events   chan event.Event
	jobs     chan job
	jobDone  chan struct{}
	inFlight int
	held     []event.Event
}

func New(opts Options) (*Engine, error) {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	e := &Engine{
		accountID: opts.AccountID,
		broker:    opts.Broker,
		rules:     opts.Rules,
		pnl:       opts.PnL,
		lockouts:  opts.Lockouts,
		timers:    opts.Timers,
		sched:     opts.Scheduler,
		exec:      opts.Executor,
		metrics:   m,
		events:    make(chan event.Event, 256),
		jobs:      make(chan job, 64),
		jobDone:   make(chan struct{}, 64),
	}
	e.deps = rules.Deps{
		PnL:      opts.PnL,
		Lockouts: opts.Lockouts,
		Timers:   opts.Timers,
		Calendar: opts.Scheduler,
	}

	e.timers.SetDispatch(e.onTimerFired)

	for _, r := range e.rules {
		if init, ok := r.(rules.Initializer); ok {
			if err := init.Init(e.accountID, e.deps); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// Events is the inbound channel a broker adapter feeds.
func (e *Engine) Events() chan<- event.Event { return e.events }

// Run consumes events until ctx is cancelled, then drains in-flight
// enforcement and returns. The two background ticks (1s sweep, 60s reset
// check) run inside the same loop so every mutation goes through the owning
// manager without extra synchronization.
func (e *Engine) Run(ctx context.Context) error {
	workerDone := make(chan struct{})
	go e.worker(workerDone)

	sweep := time.NewTicker(sweepPeriod)
	defer sweep.Stop()
	reset := time.NewTicker(resetPeriod)
	defer reset.Stop()

	log.Info().
		Str("stage", "engine_start").
		Str("account", e.accountID).
		Int("rules", len(e.rules)).
		Msg("engine running")

	for {
		select {
		case <-ctx.Done():
			close(e.jobs)
			<-workerDone
			log.Info().
				Str("stage", "engine_stop").
				Str("account", e.accountID).
				Msg("engine stopped")
			return nil

		case ev := <-e.events:
			if e.inFlight > 0 {
				// Ordering guarantee: hold until the in-flight
				// enforcement for this account resolves.
				e.held = append(e.held, ev)
				continue
			}
			e.process(ev)

		case <-e.jobDone:
			e.inFlight--
			e.metrics.ActiveLockouts.Set(float64(len(e.lockouts.Active(e.accountID))))
			for e.inFlight == 0 && len(e.held) > 0 {
				next := e.held[0]
				e.held = e.held[1:]
				e.process(next)
			}

		case <-sweep.C:
			e.timers.Tick()
			e.lockouts.SweepExpired()
			e.metrics.ActiveLockouts.Set(float64(len(e.lockouts.Active(e.accountID))))

		case <-reset.C:
			if err := e.sched.Tick(); err != nil {
				log.Error().Err(err).
					Str("stage", "reset_tick").
					Msg("reset scheduler tick failed")
			}
		}
	}
}

// process runs the full pipeline for one event: P&L accounting, the lockout
// gate, rule fan-out, verdict selection, enforcement dispatch.
func (e *Engine) process(ev event.Event) {
	start := time.Now()
	defer func() { e.metrics.ObserveEval(time.Since(start)) }()

	// Accounting first: realized P&L must stay accurate even while the
	// account is locked out. Opening fills carry no realized component
	// and are skipped.
	if ev.Kind == event.TradeExecuted && ev.Trade.RealizedPL != nil {
		if _, err := e.pnl.AddTrade(ev.AccountID, ev.Trade.TradeID, *ev.Trade.RealizedPL); err != nil {
			// Event stays unprocessed; the next fill re-derives the
			// total and the breach, at-least-once.
			log.Error().Err(err).
				Str("stage", "pnl_update").
				Str("event", ev.ID).
				Msg("pnl update failed; event not processed")
			return
		}
	}

	// Gate: while locked out no rule runs. Account-status events pass
	// through regardless, otherwise a restored trading permission could
	// never clear the auth lockout. The event is still inspected for a
	// position opened despite the restriction, which is closed
	// immediately.
	if ev.Kind != event.AccountStatusChanged && e.lockouts.IsLockedOut(ev.AccountID, ev.Symbol) {
		if ev.Kind == event.PositionChanged && ev.Position.Units != 0 {
			lk := e.lockouts.Info(ev.AccountID, "")
			if lk == nil {
				lk = e.lockouts.Info(ev.AccountID, ev.Symbol)
			}
			reason := "position opened while locked out"
			if lk != nil {
				reason = reason + ": " + lk.Reason
			}
			e.dispatch(rules.Verdict{
				Rule:     "lockout-gate",
				Breached: true,
				Action:   rules.CloseSymbol,
				Symbol:   ev.Symbol,
				Reason:   reason,
			})
		}
		return
	}

	winner := rules.Verdict{}
	for _, r := range e.rules {
		v, err := r.Evaluate(ev, e.deps)
		if err != nil {
			log.Error().Err(err).
				Str("stage", "evaluate").
				Str("rule", r.Name()).
				Str("event", ev.ID).
				Msg("rule evaluation failed")
			continue
		}

		if v.Clear != nil {
			if err := e.lockouts.Clear(ev.AccountID, v.Clear.Symbol); err != nil {
				log.Error().Err(err).
					Str("stage", "lockout_clear").
					Str("rule", r.Name()).
					Msg("auto-clear failed")
			}
			continue
		}

		// Automation actions are applied independently of the breach
		// tie-break; they never restrict anything.
		if !v.Breached && v.Action == rules.ModifyStop {
			e.dispatch(v)
			continue
		}

		if v.Breached {
			e.metrics.Breaches.WithLabelValues(v.Rule).Inc()
			winner = rules.MoreRestrictive(winner, v)
		}
	}

	if winner.Breached {
		log.Info().
			Str("stage", "breach").
			Str("rule", winner.Rule).
			Str("action", winner.Action.String()).
			Str("reason", winner.Reason).
			Msg("rule breached")
		e.dispatch(winner)
	}
}

func (e *Engine) dispatch(v rules.Verdict) {
	e.inFlight++
	e.jobs <- job{verdict: &v}
}

// onTimerFired handles the bounded timer actions. Called synchronously from
// the sweep tick.
func (e *Engine) onTimerFired(accountID string, a timer.Action) {
	switch a.Kind {
	case timer.ActionClearLockout:
		if err := e.lockouts.Clear(accountID, a.Symbol); err != nil {
			log.Error().Err(err).
				Str("stage", "cooldown_expiry").
				Str("symbol", a.Symbol).
				Msg("cooldown clear failed")
		}
	case timer.ActionCheckStop:
		e.inFlight++
		e.jobs <- job{stopCheck: a.Symbol}
	}
}

// worker is the single enforcement goroutine: broker calls may block here
// without stalling the event loop.
func (e *Engine) worker(done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()

	for j := range e.jobs {
		switch {
		case j.verdict != nil:
			result := "ok"
			if err := e.exec.Execute(ctx, *j.verdict); err != nil {
				result = "failed"
				log.Error().Err(err).
					Str("stage", "enforce").
					Str("rule", j.verdict.Rule).
					Msg("enforcement failed")
			}
			e.metrics.Enforcements.WithLabelValues(j.verdict.Action.String(), result).Inc()
		case j.stopCheck != "":
			e.checkStop(ctx, j.stopCheck)
		}
		e.jobDone <- struct{}{}
	}
}

// checkStop runs a stop-loss grace expiry: if the position is still open
// and no stop order protects it, close exactly that symbol. No lockout.
func (e *Engine) checkStop(ctx context.Context, symbol string) {
	positions, err := e.broker.ListPositions(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("stage", "stop_check").
			Str("symbol", symbol).
			Msg("list positions failed")
		return
	}
	open := false
	for _, p := range positions {
		if p.Symbol == symbol && p.Units != 0 {
			open = true
			break
		}
	}
	if !open {
		return
	}

	orders, err := e.broker.ListOrders(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("stage", "stop_check").
			Str("symbol", symbol).
			Msg("list orders failed")
		return
	}
	for _, o := range orders {
		if o.Symbol == symbol && o.Type == broker.OrderTypeStop {
			return
		}
	}

	v := rules.Verdict{
		Rule:     string(rules.KindStopLossGrace),
		Breached: true,
		Action:   rules.CloseSymbol,
		Symbol:   symbol,
		Reason:   "no stop order within grace period",
	}
	result := "ok"
	if err := e.exec.Execute(ctx, v); err != nil {
		result = "failed"
		log.Error().Err(err).
			Str("stage", "enforce").
			Str("rule", v.Rule).
			Msg("grace close failed")
	}
	e.metrics.Enforcements.WithLabelValues(v.Action.String(), result).Inc()
	e.metrics.Breaches.WithLabelValues(v.Rule).Inc()
}
