package pnl

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/riskgate/store"
)

const acct = "ACC-1"

func newTestAccumulator(t *testing.T) (*Accumulator, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a := New(st, time.UTC)
	a.SetNowFn(func() time.Time {
		return time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	})
	return a, path
}

func TestAddTradeAccumulates(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccumulator(t)

	total, err := a.AddTrade(acct, "T1", -200)
	assert.NoError(t, err)
	assert.InDelta(t, -200, total, 1e-9)

	total, err = a.AddTrade(acct, "T2", -150)
	assert.NoError(t, err)
	assert.InDelta(t, -350, total, 1e-9)

	got, count, err := a.GetDaily(acct)
	assert.NoError(t, err)
	assert.InDelta(t, -350, got, 1e-9)
	assert.Equal(t, 2, count)
}

func TestAddTradeIdempotentAfterRestart(t *testing.T) {
	t.Parallel()

	a, path := newTestAccumulator(t)

	_, err := a.AddTrade(acct, "T1", -200)
	assert.NoError(t, err)

	// Reopen the store as a restart would, then redeliver the same fill.
	st, err := store.Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := New(st, time.UTC)
	b.SetNowFn(func() time.Time {
		return time.Date(2026, 8, 21, 10, 5, 0, 0, time.UTC)
	})

	total, err := b.AddTrade(acct, "T1", -200)
	assert.NoError(t, err)
	assert.InDelta(t, -200, total, 1e-9)

	got, count, err := b.GetDaily(acct)
	assert.NoError(t, err)
	assert.InDelta(t, -200, got, 1e-9)
	assert.Equal(t, 1, count)
}

func TestGetDailyEmptyDay(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccumulator(t)

	total, count, err := a.GetDaily(acct)
	assert.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, count)
}

func TestResetDailyZeroesCurrentDateOnly(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccumulator(t)

	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	a.SetNowFn(func() time.Time { return now })

	_, err := a.AddTrade(acct, "T1", -300)
	assert.NoError(t, err)

	// Next day: yesterday's row must survive the reset untouched.
	now = now.AddDate(0, 0, 1)
	_, err = a.AddTrade(acct, "T2", 50)
	assert.NoError(t, err)

	assert.NoError(t, a.ResetDaily(acct))

	total, count, err := a.GetDaily(acct)
	assert.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, count)

	// Rewind the clock to read the historical row.
	now = now.AddDate(0, 0, -1)
	total, count, err = a.GetDaily(acct)
	assert.NoError(t, err)
	assert.InDelta(t, -300, total, 1e-9)
	assert.Equal(t, 1, count)
}

func TestDateKeyedInAccountTimezone(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	chicago, err := time.LoadLocation("America/Chicago")
	assert.NoError(t, err)

	a := New(st, chicago)
	// 02:00 UTC Aug 22 is still Aug 21 in Chicago.
	a.SetNowFn(func() time.Time {
		return time.Date(2026, 8, 22, 2, 0, 0, 0, time.UTC)
	})

	_, err = a.AddTrade(acct, "T1", 100)
	assert.NoError(t, err)

	var date string
	err = st.DB().QueryRow(`SELECT date FROM daily_pnl WHERE account_id = ?`, acct).Scan(&date)
	assert.NoError(t, err)
	assert.Equal(t, "2026-08-21", date)
}
