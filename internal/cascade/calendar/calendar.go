// Package calendar measures SLA time in working hours.
//
// A calendar is a daily [start, end) window in a time zone, optionally
// skipping Saturdays and Sundays. Equal start and end mean the clock runs
// around the day.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"cascade_backend/internal/cascade/domain"
)

const minutesPerDay = 24 * 60

// Calendar is immutable and safe for concurrent use.
type Calendar struct {
	start   int
	end     int
	weekend bool
	loc     *time.Location
}

// New builds a calendar from "HH:MM" bounds. A start after end is rejected.
func New(start, end string, weekend bool, loc *time.Location) (Calendar, error) {
	s, err := parseClock(start)
	if err != nil {
		return Calendar{}, fmt.Errorf("%w: working hours start: %v", domain.ErrConfiguration, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Calendar{}, fmt.Errorf("%w: working hours end: %v", domain.ErrConfiguration, err)
	}
	if s > e {
		return Calendar{}, fmt.Errorf("%w: working hours start %s is after end %s", domain.ErrConfiguration, start, end)
	}
	if loc == nil {
		loc = time.UTC
	}
	if s == e {
		s, e = 0, minutesPerDay
	}
	return Calendar{start: s, end: e, weekend: weekend, loc: loc}, nil
}

// FromSnapshot builds the calendar an assignment was created under.
// An empty or unknown snapshot zone falls back to fallback.
func FromSnapshot(s domain.ConfigSnapshot, fallback *time.Location) (Calendar, error) {
	loc := fallback
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		}
	}
	return New(s.WorkingHoursStart, s.WorkingHoursEnd, s.Weekend, loc)
}

// Location returns the calendar's zone.
func (c Calendar) Location() *time.Location {
	return c.loc
}

// Add returns the instant at which d of working time has passed after t.
func (c Calendar) Add(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	cur := t.In(c.loc)
	remaining := d
	for {
		open, closeAt, working := c.window(cur)
		if !working || !cur.Before(closeAt) {
			cur = nextMidnight(cur)
			continue
		}
		if cur.Before(open) {
			cur = open
		}
		available := closeAt.Sub(cur)
		if remaining <= available {
			return cur.Add(remaining).In(t.Location())
		}
		remaining -= available
		cur = nextMidnight(cur)
	}
}

// Elapsed returns the working time inside [a, b).
func (c Calendar) Elapsed(a, b time.Time) time.Duration {
	if !b.After(a) {
		return 0
	}
	var total time.Duration
	day := midnight(a.In(c.loc))
	for day.Before(b) {
		open, closeAt, working := c.window(day)
		if working {
			from := later(open, a)
			to := earlier(closeAt, b)
			if to.After(from) {
				total += to.Sub(from)
			}
		}
		day = nextMidnight(day)
	}
	return total
}

// window returns the working window of the local day containing t.
func (c Calendar) window(t time.Time) (time.Time, time.Time, bool) {
	day := midnight(t)
	if !c.weekend {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return time.Time{}, time.Time{}, false
		}
	}
	y, m, d := day.Date()
	open := time.Date(y, m, d, c.start/60, c.start%60, 0, 0, c.loc)
	var closeAt time.Time
	if c.end == minutesPerDay {
		closeAt = nextMidnight(day)
	} else {
		closeAt = time.Date(y, m, d, c.end/60, c.end%60, 0, 0, c.loc)
	}
	return open, closeAt, true
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func parseClock(v string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", v)
	}
	return h*60 + m, nil
}
