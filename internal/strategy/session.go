package strategy

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// window is a trading window in minutes-of-day, inclusive on both ends.
// open > close means the window wraps midnight (futures night sessions,
// e.g. 21:00-01:00).
type window struct {
	open  int
	close int
}

func (w window) contains(m int) bool {
	if w.open <= w.close {
		return w.open <= m && m <= w.close
	}
	return m >= w.open || m <= w.close
}

// minutesToClose measures forward from m to the window close, wrapping at
// midnight.
func (w window) minutesToClose(m int) int {
	return (w.close - m + minutesPerDay) % minutesPerDay
}

// Session is the exchange trading calendar for one instrument: a set of
// intraday windows (futures venues split the day into night, morning and
// afternoon sessions).
type Session struct {
	windows []window
}

// ParseSession builds a session from "15:04"-formatted open/close pairs.
func ParseSession(pairs [][2]string) (*Session, error) {
	s := &Session{}
	for _, p := range pairs {
		open, err := parseMinutes(p[0])
		if err != nil {
			return nil, err
		}
		clos, err := parseMinutes(p[1])
		if err != nil {
			return nil, err
		}
		s.windows = append(s.windows, window{open: open, close: clos})
	}
	return s, nil
}

func parseMinutes(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse session time %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InSession reports whether t falls inside a trading window. A nil or empty
// session trades around the clock.
func (s *Session) InSession(t time.Time) bool {
	if s == nil || len(s.windows) == 0 {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	for _, w := range s.windows {
		if w.contains(m) {
			return true
		}
	}
	return false
}

// AboutToClose reports whether a window closes within margin of t. Used to
// trigger the end-of-session flatten before the venue stops matching.
func (s *Session) AboutToClose(t time.Time, margin time.Duration) bool {
	if s == nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	marginMin := int(margin.Minutes())
	for _, w := range s.windows {
		if w.contains(m) && m != w.open && w.minutesToClose(m) < marginMin {
			return true
		}
	}
	return false
}
