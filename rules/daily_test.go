package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/riskgate/lockout"
)

func TestDailyLossBreachesAtLimit(t *testing.T) {
	t.Parallel()

	deps, cal := newDeps(t)
	deps.PnL.SetNowFn(func() time.Time { return baseTime })
	r := &DailyLoss{Limit: -500}

	// -200 then -150: still above the limit.
	_, err := deps.PnL.AddTrade(acct, "T1", -200)
	assert.NoError(t, err)
	v, err := r.Evaluate(tradeEvent("T1", pf(-200), baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	_, err = deps.PnL.AddTrade(acct, "T2", -150)
	assert.NoError(t, err)
	v, err = r.Evaluate(tradeEvent("T2", pf(-150), baseTime.Add(time.Minute)), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	// -175 brings the day to -525: flatten, cancel, lock until reset.
	_, err = deps.PnL.AddTrade(acct, "T3", -175)
	assert.NoError(t, err)
	v, err = r.Evaluate(tradeEvent("T3", pf(-175), baseTime.Add(2*time.Minute)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, CloseAll, v.Action)
	assert.True(t, v.CancelOrders)
	assert.NotNil(t, v.Lockout)
	assert.Equal(t, lockout.Hard, v.Lockout.Kind)
	assert.Equal(t, "", v.Lockout.Symbol)
	assert.NotNil(t, v.Lockout.Until)
	assert.True(t, v.Lockout.Until.Equal(cal.reset))
}

func TestDailyLossIgnoresOpeningFills(t *testing.T) {
	t.Parallel()

	deps, _ := newDeps(t)
	deps.PnL.SetNowFn(func() time.Time { return baseTime })
	r := &DailyLoss{Limit: -100}

	_, err := deps.PnL.AddTrade(acct, "T1", -300)
	assert.NoError(t, err)

	// A half-turn fill carries no realized component and never triggers.
	v, err := r.Evaluate(tradeEvent("T2", nil, baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)
}

func TestDailyProfitBreachesAtTarget(t *testing.T) {
	t.Parallel()

	deps, cal := newDeps(t)
	deps.PnL.SetNowFn(func() time.Time { return baseTime })
	r := &DailyProfit{Target: 400}

	_, err := deps.PnL.AddTrade(acct, "T1", 250)
	assert.NoError(t, err)
	v, err := r.Evaluate(tradeEvent("T1", pf(250), baseTime), deps)
	assert.NoError(t, err)
	assert.False(t, v.Breached)

	_, err = deps.PnL.AddTrade(acct, "T2", 150)
	assert.NoError(t, err)
	v, err = r.Evaluate(tradeEvent("T2", pf(150), baseTime.Add(time.Minute)), deps)
	assert.NoError(t, err)
	assert.True(t, v.Breached)
	assert.Equal(t, CloseAll, v.Action)
	assert.NotNil(t, v.Lockout)
	assert.Equal(t, lockout.Hard, v.Lockout.Kind)
	assert.True(t, v.Lockout.Until.Equal(cal.reset))
}
