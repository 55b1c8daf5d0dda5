package engine

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/riskgate/broker"
	"github.com/rustyeddy/riskgate/broker/sim"
	"github.com/rustyeddy/riskgate/enforce"
	"github.com/rustyeddy/riskgate/event"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/pnl"
	"github.com/rustyeddy/riskgate/rules"
	"github.com/rustyeddy/riskgate/sched"
	"github.com/rustyeddy/riskgate/store"
	"github.com/rustyeddy/riskgate/timer"
)

const acct = "ACC-1"

const (
	waitFor = 3 * time.Second
	poll    = 10 * time.Millisecond
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine   *Engine
	broker   *sim.Broker
	lockouts *lockout.Manager
	timers   *timer.Manager
	pnl      *pnl.Accumulator
	clock    *testClock
	events   chan<- event.Event
	seq      int
}

func newHarness(t *testing.T, ruleSet []rules.Rule) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := &testClock{now: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)} // Thursday

	timers, err := timer.NewManager(st)
	assert.NoError(t, err)
	lk, err := lockout.NewManager(st, timers)
	assert.NoError(t, err)
	acc := pnl.New(st, time.UTC)
	s, err := sched.New(acct, sched.TimeOfDay{Hour: 17}, time.UTC, nil, st, acc, lk)
	assert.NoError(t, err)

	timers.SetNowFn(clock.Now)
	lk.SetNowFn(clock.Now)
	acc.SetNowFn(clock.Now)
	s.SetNowFn(clock.Now)

	b := sim.New(broker.Account{ID: acct, CanTrade: true})

	eng, err := New(Options{
		AccountID: acct,
		Broker:    b,
		Rules:     ruleSet,
		PnL:       acc,
		Lockouts:  lk,
		Timers:    timers,
		Scheduler: s,
		Executor:  enforce.New(acct, b, st, lk),
	})
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()

	return &harness{
		engine:   eng,
		broker:   b,
		lockouts: lk,
		timers:   timers,
		pnl:      acc,
		clock:    clock,
		events:   eng.Events(),
	}
}

func (h *harness) trade(realized *float64) {
	h.seq++
	id := "T" + strconv.Itoa(h.seq)
	h.events <- event.Event{
		ID:        "E-" + id,
		Kind:      event.TradeExecuted,
		AccountID: acct,
		Symbol:    "EUR_USD",
		Time:      h.clock.Now(),
		Trade:     &event.TradePayload{TradeID: id, Units: 100, Price: 1.1, RealizedPL: realized},
	}
}

func (h *harness) position(symbol string, units, upl float64) {
	h.events <- event.Event{
		ID:        "E-pos",
		Kind:      event.PositionChanged,
		AccountID: acct,
		Symbol:    symbol,
		Time:      h.clock.Now(),
		Position:  &event.PositionPayload{Units: units, AvgPrice: 1.1, UnrealizedPL: upl},
	}
}

func (h *harness) status(canTrade bool, reason string) {
	h.events <- event.Event{
		ID:        "E-status",
		Kind:      event.AccountStatusChanged,
		AccountID: acct,
		Time:      h.clock.Now(),
		Status:    &event.StatusPayload{CanTrade: canTrade, Reason: reason},
	}
}

func pf(v float64) *float64 { return &v }

func countCalls(log []string, call string) int {
	n := 0
	for _, c := range log {
		if c == call {
			n++
		}
	}
	return n
}

func TestDailyLossBreachFlattensAndLocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.DailyLoss{Limit: -500}})
	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})

	h.trade(pf(-200))
	h.trade(pf(-150))
	h.trade(pf(-175)) // day at -525

	assert.Eventually(t, func() bool {
		return h.lockouts.IsLockedOut(acct, "EUR_USD")
	}, waitFor, poll)

	log := h.broker.CallLog()
	assert.Equal(t, 1, countCalls(log, "close-all"))
	assert.Equal(t, 1, countCalls(log, "cancel-orders"))
	assert.Nil(t, h.broker.Position("EUR_USD"))

	lk := h.lockouts.Info(acct, "")
	assert.NotNil(t, lk)
	assert.Equal(t, lockout.Hard, lk.Kind)
	assert.NotNil(t, lk.ExpiresAt)
	assert.True(t, lk.ExpiresAt.Equal(time.Date(2026, 8, 20, 17, 0, 0, 0, time.UTC)))
}

func TestLockoutGateClosesPositionOpenedDuringLockout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.DailyLoss{Limit: -500}})

	h.trade(pf(-600))
	assert.Eventually(t, func() bool {
		return h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)

	// A position sneaks in while locked out: closed immediately, and the
	// accounting for later fills continues regardless.
	h.broker.SetPosition(broker.Position{Symbol: "GBP_USD", Units: 50})
	h.position("GBP_USD", 50, 0)

	assert.Eventually(t, func() bool {
		return countCalls(h.broker.CallLog(), "close GBP_USD") == 1
	}, waitFor, poll)
	assert.Nil(t, h.broker.Position("GBP_USD"))

	h.trade(pf(-100))
	assert.Eventually(t, func() bool {
		total, _, err := h.pnl.GetDaily(acct)
		return err == nil && total == -700
	}, waitFor, poll)

	// Still exactly one close-all: the gate stops re-detection.
	assert.Equal(t, 1, countCalls(h.broker.CallLog(), "close-all"))
}

func TestFrequencyCooldownWithoutClosing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{
		&rules.TradeFrequency{PerMinute: 3, CooldownMinute: 5 * time.Minute},
	})
	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})

	for i := 0; i < 4; i++ {
		h.trade(nil)
	}

	assert.Eventually(t, func() bool {
		return h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)

	// The breaching fill stands. No position is touched.
	assert.Empty(t, h.broker.CallLog())
	lk := h.lockouts.Info(acct, "")
	assert.NotNil(t, lk)
	assert.Equal(t, lockout.Cooldown, lk.Kind)

	// The paired timer expires; the sweep clears the cooldown. Wait for
	// the timer to be armed before moving the clock past it.
	assert.Eventually(t, func() bool {
		return h.timers.Remaining(acct, "cooldown") > 0
	}, waitFor, poll)
	h.clock.Advance(6 * time.Minute)
	assert.Eventually(t, func() bool {
		return !h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)
}

func TestStopGraceClosesUnprotectedPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.StopLossGrace{Grace: 2 * time.Minute}})

	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})
	h.position("EUR_USD", 100, 0)

	assert.Eventually(t, func() bool {
		return h.timers.Remaining(acct, rules.StopGraceTimerPrefix+"EUR_USD") > 0
	}, waitFor, poll)

	// Grace passes with no stop order: the position is closed.
	h.clock.Advance(3 * time.Minute)
	assert.Eventually(t, func() bool {
		return countCalls(h.broker.CallLog(), "close EUR_USD") == 1
	}, waitFor, poll)
	assert.Nil(t, h.broker.Position("EUR_USD"))
	assert.False(t, h.lockouts.IsLockedOut(acct, "EUR_USD")) // no lockout
}

func TestStopGraceSatisfiedByStopOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.StopLossGrace{Grace: 2 * time.Minute}})

	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})
	h.broker.SetOrder(broker.Order{ID: "O1", Symbol: "EUR_USD", Type: broker.OrderTypeStop, Price: 1.09})
	h.position("EUR_USD", 100, 0)

	assert.Eventually(t, func() bool {
		return h.timers.Remaining(acct, rules.StopGraceTimerPrefix+"EUR_USD") > 0
	}, waitFor, poll)
	h.clock.Advance(3 * time.Minute)

	// The expiry check finds the stop and leaves the position alone. Wait
	// out a couple of sweep ticks before asserting nothing happened.
	time.Sleep(2500 * time.Millisecond)
	assert.Empty(t, h.broker.CallLog())
	assert.NotNil(t, h.broker.Position("EUR_USD"))
}

func TestTrailingStopAutomation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.TrailingStop{Activate: 0.002, Distance: 0.001}})

	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})
	h.broker.SetOrder(broker.Order{ID: "O1", Symbol: "EUR_USD", Type: broker.OrderTypeStop, Price: 1.09})

	h.position("EUR_USD", 100, 0.30)

	assert.Eventually(t, func() bool {
		return countCalls(h.broker.CallLog(), "modify-stop EUR_USD 1.10200") == 1
	}, waitFor, poll)
	assert.False(t, h.lockouts.IsLockedOut(acct, "EUR_USD"))
}

func TestAuthRestoreClearsLockoutThroughGate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []rules.Rule{&rules.AuthGuard{}})
	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 100})

	h.status(false, "margin call")
	assert.Eventually(t, func() bool {
		return h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)

	lk := h.lockouts.Info(acct, "")
	assert.NotNil(t, lk)
	assert.Nil(t, lk.ExpiresAt) // permanent until the broker restores it
	assert.Equal(t, 1, countCalls(h.broker.CallLog(), "close-all"))

	// The restore event must reach the rule even though the account is
	// locked out; it is the only automatic way back in.
	h.status(true, "")
	assert.Eventually(t, func() bool {
		return !h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)
}

func TestMostRestrictiveVerdictWinsAcrossRules(t *testing.T) {
	t.Parallel()

	// One position event trips both the per-symbol cap (reduce) and the
	// unrealized loss limit (close all + lockout); only the latter runs.
	h := newHarness(t, []rules.Rule{
		&rules.MaxPosition{Limit: 100},
		&rules.UnrealizedLoss{Limit: -400, Scope: rules.ScopeAll, SetLockout: true},
	})
	h.broker.SetPosition(broker.Position{Symbol: "EUR_USD", Units: 150})

	h.position("EUR_USD", 150, -450)

	assert.Eventually(t, func() bool {
		return h.lockouts.IsLockedOut(acct, "")
	}, waitFor, poll)

	log := h.broker.CallLog()
	assert.Equal(t, 1, countCalls(log, "close-all"))
	assert.Zero(t, countCalls(log, "reduce EUR_USD 100"))
}
