package sched

import "time"

// Session is a configured trading-hours window [Start, End) in its own
// timezone, typically per instrument class.
type Session struct {
	Start TimeOfDay
	End   TimeOfDay
	Loc   *time.Location
}

func (s Session) startOn(day time.Time) time.Time {
	d := day.In(s.Loc)
	return time.Date(d.Year(), d.Month(), d.Day(), s.Start.Hour, s.Start.Minute, 0, 0, s.Loc)
}

func (s Session) endOn(day time.Time) time.Time {
	d := day.In(s.Loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), s.End.Hour, s.End.Minute, 0, 0, s.Loc)
	if !end.After(s.startOn(day)) {
		// Overnight session, e.g. 18:00-17:00 next day.
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func tradingDay(t time.Time, isHoliday func(time.Time) bool) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday && !isHoliday(t)
}

// Contains reports whether t falls inside the session window on a valid
// trading day. Holidays count as "session never opens".
func (s Session) Contains(t time.Time, isHoliday func(time.Time) bool) bool {
	lt := t.In(s.Loc)
	if tradingDay(lt, isHoliday) && !lt.Before(s.startOn(lt)) && lt.Before(s.endOn(lt)) {
		return true
	}
	// An overnight session that opened the previous day may still be
	// running.
	prev := lt.AddDate(0, 0, -1)
	if !tradingDay(prev, isHoliday) {
		return false
	}
	return !lt.Before(s.startOn(prev)) && lt.Before(s.endOn(prev))
}

// NextStart returns the first session open strictly after t, skipping
// weekends and holidays.
func (s Session) NextStart(t time.Time, isHoliday func(time.Time) bool) time.Time {
	day := t.In(s.Loc)
	for i := 0; i < 370; i++ {
		start := s.startOn(day)
		if start.After(t) && tradingDay(day, isHoliday) {
			return start
		}
		day = day.AddDate(0, 0, 1)
	}
	// Config with a whole year of holidays; fall back to tomorrow.
	return s.startOn(t.AddDate(0, 0, 1))
}
