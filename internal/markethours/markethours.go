// Package markethours models a regular trading session: its timezone,
// open/close clock times, weekends and exchange holidays.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // containers often ship without a zoneinfo database
)

// Default session: US equities regular hours.
const (
	DefaultTimezone = "America/New_York"
	DefaultOpen     = "09:30"
	DefaultClose    = "16:00"
)

// Session is a daily trading session in a fixed location.
type Session struct {
	loc         *time.Location
	openMinute  int // minutes after local midnight
	closeMinute int
	holidays    map[string]bool
}

// New builds a session. open and close are "HH:MM" in tz.
// holidays are "2006-01-02" dates; nil selects the built-in list.
func New(tz, open, close string, holidays []string) (*Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	om, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	cm, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if cm <= om {
		return nil, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	if holidays == nil {
		holidays = DefaultHolidays()
	}
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		set[h] = true
	}
	return &Session{loc: loc, openMinute: om, closeMinute: cm, holidays: set}, nil
}

// Default returns the US equities session. It panics only if the embedded
// timezone database is missing, which cannot happen with time/tzdata linked.
func Default() *Session {
	s, err := New(DefaultTimezone, DefaultOpen, DefaultClose, nil)
	if err != nil {
		panic(err)
	}
	return s
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the session's timezone.
func (s *Session) Location() *time.Location { return s.loc }

// IsHoliday returns true if t's local date is an exchange holiday.
func (s *Session) IsHoliday(t time.Time) bool {
	lt := t.In(s.loc)
	return s.holidays[lt.Format("2006-01-02")]
}

// IsWeekday returns true if t is Mon–Fri in the session timezone.
func (s *Session) IsWeekday(t time.Time) bool {
	wd := t.In(s.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	return s.IsWeekday(t) && !s.IsHoliday(t)
}

// SessionOpen returns the open time on t's local date, whether or not that
// date is a trading day.
func (s *Session) SessionOpen(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), s.openMinute/60, s.openMinute%60, 0, 0, s.loc)
}

// SessionClose returns the close time on t's local date.
func (s *Session) SessionClose(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), s.closeMinute/60, s.closeMinute%60, 0, 0, s.loc)
}

// MinutesSinceOpen returns minutes elapsed since today's open (negative
// before the open) and false on non-trading days.
func (s *Session) MinutesSinceOpen(t time.Time) (float64, bool) {
	if !s.IsTradingDay(t) {
		return 0, false
	}
	return t.Sub(s.SessionOpen(t)).Minutes(), true
}

// IsMarketOpen returns true if t falls within regular hours on a trading day.
func (s *Session) IsMarketOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	return !t.Before(s.SessionOpen(t)) && t.Before(s.SessionClose(t))
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func (s *Session) NextOpen(t time.Time) time.Time {
	todayOpen := s.SessionOpen(t)
	if t.Before(todayOpen) && s.IsTradingDay(t) {
		return todayOpen
	}
	lt := t.In(s.loc)
	d := time.Date(lt.Year(), lt.Month(), lt.Day()+1, 12, 0, 0, 0, s.loc)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if s.IsTradingDay(d) {
			return s.SessionOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.SessionOpen(d)
}

// TimeUntilClose returns the duration until today's close, or 0 once closed.
func (s *Session) TimeUntilClose(t time.Time) time.Duration {
	d := s.SessionClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func (s *Session) StatusString(t time.Time) string {
	if s.IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	lt := next.In(s.loc)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		lt.Weekday().String()[:3], lt.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
