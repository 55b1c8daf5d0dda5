package rules

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/riskgate/lockout"
)

func TestFrequencyMinuteWindow(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	r := &TradeFrequency{PerMinute: 3, CooldownMinute: 5 * time.Minute}

	// Three trades in a minute sit exactly at the cap.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("T%d", i)
		v, err := r.Evaluate(tradeEvent(id, nil, baseTime.Add(time.Duration(i)*10*time.Second)), deps)
		assert.NoError(t, err)
		assert.False(t, v.Breached)
	}

	// The fourth breaches and installs the minute cooldown. The fill itself
	// stands; only the lockout goes in.
	v, err := r.Evaluate(tradeEvent("T3", nil, baseTime.Add(30*time.Second)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, NoAction, v.Action)
	assert.NotNil(t, v.Lockout)
	assert.Equal(t, lockout.Cooldown, v.Lockout.Kind)
	assert.Equal(t, 5*time.Minute, v.Lockout.Duration)
}

func TestFrequencyWindowSlides(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	r := &TradeFrequency{PerMinute: 2, CooldownMinute: 5 * time.Minute}

	v, err := r.Evaluate(tradeEvent("T0", nil, baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
	v, err = r.Evaluate(tradeEvent("T1", nil, baseTime.Add(10*time.Second)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	// 70s later the first trade has left the window.
	v, err = r.Evaluate(tradeEvent("T2", nil, baseTime.Add(70*time.Second)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
}

func TestFrequencyHourWindow(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	r := &TradeFrequency{PerHour: 2, CooldownHour: 30 * time.Minute}

	v, err := r.Evaluate(tradeEvent("T0", nil, baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
	v, err = r.Evaluate(tradeEvent("T1", nil, baseTime.Add(20*time.Minute)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	v, err = r.Evaluate(tradeEvent("T2", nil, baseTime.Add(40*time.Minute)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, 30*time.Minute, v.Lockout.Duration)
}

func TestFrequencySessionWindow(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	deps.PnL.SetNowFn(func() time.Time { return baseTime })
	r := &TradeFrequency{PerSession: 2, CooldownSession: 4 * time.Hour}

	// Closed trades count via the accumulator.
	_, err := deps.PnL.AddTrade(acct, "T0", -10)
	assert.NoError(t, err)
	_, err = deps.PnL.AddTrade(acct, "T1", 15)
	assert.NoError(t, err)

	v, err := r.Evaluate(tradeEvent("T1", pf(15), baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	// An opening fill is not yet in the accumulator; the rule counts it.
	v, err = r.Evaluate(tradeEvent("T2", nil, baseTime.Add(time.Minute)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, 4*time.Hour, v.Lockout.Duration)
}

func TestFrequencySessionCountsOpeningFills(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	deps.PnL.SetNowFn(func() time.Time { return baseTime })
	r := &TradeFrequency{PerSession: 2, CooldownSession: 4 * time.Hour}

	// None of these fills close a trade, so the accumulator never sees
	// them. The rule still counts every one.
	v, err := r.Evaluate(tradeEvent("O1", nil, baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
	v, err = r.Evaluate(tradeEvent("O2", nil, baseTime.Add(2*time.Hour)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	v, err = r.Evaluate(tradeEvent("O3", nil, baseTime.Add(4*time.Hour)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, 4*time.Hour, v.Lockout.Duration)

	// A new calendar day starts a fresh session count.
	v, err = r.Evaluate(tradeEvent("O4", nil, baseTime.AddDate(0, 0, 1)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
}

func TestFrequencySmallestWindowWins(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	r := &TradeFrequency{
		PerMinute: 1, CooldownMinute: 2 * time.Minute,
		PerHour: 1, CooldownHour: time.Hour,
	}

	v, err := r.Evaluate(tradeEvent("T0", nil, baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	// Both windows are over cap; the minute cooldown is the one installed.
	v, err = r.Evaluate(tradeEvent("T1", nil, baseTime.Add(time.Second)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, 2*time.Minute, v.Lockout.Duration)
}
