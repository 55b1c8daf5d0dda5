package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/pnl"
	"github.com/rustyeddy/riskgate/store"
)

const lastResetKey = "last_reset_date"

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return t, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

// Scheduler fires the daily session reset: zero the P&L accumulator and
// clear date-bound lockouts, at most once per calendar day in the configured
// timezone. The last-reset marker is persisted so a restart after today's
// reset does not fire a second one.
type Scheduler struct {
	mu        sync.Mutex
	accountID string
	resetAt   TimeOfDay
	loc       *time.Location
	holidays  map[string]bool

	store    *store.Store
	pnl      *pnl.Accumulator
	lockouts *lockout.Manager

	lastReset string
	nowFn     func() time.Time
}

func New(accountID string, resetAt TimeOfDay, loc *time.Location, holidays []string,
	st *store.Store, acc *pnl.Accumulator, lk *lockout.Manager) (*Scheduler, error) {

	if loc == nil {
		loc = time.UTC
	}
	hs := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		hs[h] = true
	}

	last, err := st.GetMeta(lastResetKey)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		accountID: accountID,
		resetAt:   resetAt,
		loc:       loc,
		holidays:  hs,
		store:     st,
		pnl:       acc,
		lockouts:  lk,
		lastReset: last,
		nowFn:     time.Now,
	}, nil
}

// SetNowFn overrides the time provider (useful for tests).
func (s *Scheduler) SetNowFn(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	s.nowFn = fn
}

// Location returns the configured account timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// IsHoliday reports whether t falls on a configured holiday in the account
// timezone.
func (s *Scheduler) IsHoliday(t time.Time) bool {
	return s.holidays[t.In(s.loc).Format("2006-01-02")]
}

// resetOn returns the reset instant for the calendar day containing t.
func (s *Scheduler) resetOn(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), s.resetAt.Hour, s.resetAt.Minute, 0, 0, s.loc)
}

// NextReset computes the unlock moment for a breach at from: today's reset
// when the breach precedes it on a trading day, otherwise the reset on the
// next day that is neither a weekend nor a holiday. Computed once at
// lockout-set time so a DST shift mid-lockout cannot move the unlock moment.
func (s *Scheduler) NextReset(from time.Time) time.Time {
	r := s.resetOn(from)
	if from.Before(r) && tradingDay(from.In(s.loc), s.IsHoliday) {
		return r
	}
	day := from.In(s.loc)
	for {
		day = day.AddDate(0, 0, 1)
		if !tradingDay(day, s.IsHoliday) {
			continue
		}
		return s.resetOn(day)
	}
}

// Tick is invoked roughly once per minute. It fires the reset when now has
// passed today's reset time and today's reset has not fired yet. Holidays
// never fire a reset.
func (s *Scheduler) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn().In(s.loc)
	today := now.Format("2006-01-02")

	if s.holidays[today] || s.lastReset == today || now.Before(s.resetOn(now)) {
		return nil
	}

	if err := s.pnl.ResetDaily(s.accountID); err != nil {
		return fmt.Errorf("reset tick: %w", err)
	}
	if err := s.lockouts.ClearDateBound(s.accountID); err != nil {
		return fmt.Errorf("reset tick: %w", err)
	}
	if err := s.store.SetMeta(lastResetKey, today); err != nil {
		return fmt.Errorf("reset tick: %w", err)
	}
	s.lastReset = today

	log.Info().
		Str("stage", "reset_fired").
		Str("account", s.accountID).
		Str("date", today).
		Msg("daily reset")
	return nil
}
