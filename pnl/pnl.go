package pnl

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/riskgate/store"
)

// Accumulator tracks realized P&L and trade count for the current trading
// day, keyed (account, date-in-account-timezone). Every mutation is one
// transaction so a crash between trades never loses or double-counts a
// delta.
type Accumulator struct {
	mu    sync.Mutex
	store *store.Store
	loc   *time.Location
	nowFn func() time.Time
}

func New(st *store.Store, loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{
		store: st,
		loc:   loc,
		nowFn: time.Now,
	}
}

// SetNowFn overrides the time provider (useful for tests).
func (a *Accumulator) SetNowFn(fn func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	a.nowFn = fn
}

func (a *Accumulator) today() string {
	return a.nowFn().In(a.loc).Format("2006-01-02")
}

// AddTrade applies a realized delta and returns the new daily total.
//
// tradeID makes redelivery safe: if the stored row already recorded this
// trade as its most recent, the call is a no-op and the current total is
// returned. Callers must not invoke AddTrade for fills without a realized
// component; opening fills carry none and are skipped upstream.
func (a *Accumulator) AddTrade(accountID, tradeID string, delta float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	date := a.today()
	var total float64

	err := a.store.WithTx(func(tx *sql.Tx) error {
		var last string
		err := tx.QueryRow(`
			SELECT realized_pnl, last_trade_id FROM daily_pnl
			WHERE account_id = ? AND date = ?`,
			accountID, date,
		).Scan(&total, &last)

		switch {
		case err == sql.ErrNoRows:
			total = delta
			_, err = tx.Exec(`
				INSERT INTO daily_pnl (account_id, date, realized_pnl, trade_count, last_trade_id)
				VALUES (?, ?, ?, 1, ?)`,
				accountID, date, delta, tradeID,
			)
			return err
		case err != nil:
			return err
		}

		if tradeID != "" && last == tradeID {
			// Redelivered fill; already counted.
			return nil
		}

		total += delta
		_, err = tx.Exec(`
			UPDATE daily_pnl
			SET realized_pnl = ?, trade_count = trade_count + 1, last_trade_id = ?
			WHERE account_id = ? AND date = ?`,
			total, tradeID, accountID, date,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add trade: %w", err)
	}
	return total, nil
}

// GetDaily returns the current day's realized total and trade count. A day
// with no trades yet reads as (0, 0).
func (a *Accumulator) GetDaily(accountID string) (float64, int, error) {
	a.mu.Lock()
	date := a.today()
	a.mu.Unlock()

	var (
		total float64
		count int
	)
	err := a.store.DB().QueryRow(`
		SELECT realized_pnl, trade_count FROM daily_pnl
		WHERE account_id = ? AND date = ?`,
		accountID, date,
	).Scan(&total, &count)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get daily pnl: %w", err)
	}
	return total, count, nil
}

// ResetDaily zeroes the current date's row. Historical rows are never
// touched.
func (a *Accumulator) ResetDaily(accountID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	date := a.today()
	err := a.store.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE daily_pnl
			SET realized_pnl = 0, trade_count = 0, last_trade_id = ''
			WHERE account_id = ? AND date = ?`,
			accountID, date,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset daily pnl: %w", err)
	}

	log.Info().
		Str("stage", "pnl_reset").
		Str("account", accountID).
		Str("date", date).
		Msg("daily pnl reset")
	return nil
}
