package calendar

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func calendarFor(startMin, length int, weekend bool) Calendar {
	start := startMin % (23 * 60)
	end := start + 1 + length%(24*60-start-1)
	c, err := New(clock(start), clock(end%(24*60)), weekend, saoPaulo)
	if err != nil {
		c, _ = New("08:00", "18:00", weekend, saoPaulo)
	}
	return c
}

func clock(m int) string {
	return time.Date(2000, 1, 1, m/60, m%60, 0, 0, time.UTC).Format("15:04")
}

func instant(offsetMinutes int) time.Time {
	return at(2, 0, 0).Add(time.Duration(offsetMinutes) * time.Minute)
}

// Elapsed(t, Add(t, d)) == d and Add never moves backwards.
func TestAddElapsedRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("elapsed of add is the added duration", prop.ForAll(
		func(startMin, length, offset, minutes int, weekend bool) bool {
			c := calendarFor(startMin, length, weekend)
			from := instant(offset)
			d := time.Duration(minutes) * time.Minute
			to := c.Add(from, d)
			return !to.Before(from) && c.Elapsed(from, to) == d
		},
		gen.IntRange(0, 23*60),
		gen.IntRange(0, 24*60),
		gen.IntRange(0, 14*24*60),
		gen.IntRange(0, 5000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Elapsed(a, c) == Elapsed(a, b) + Elapsed(b, c) for a <= b <= c.
func TestElapsedIsAdditive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("elapsed splits at any midpoint", prop.ForAll(
		func(startMin, length, a, ab, bc int, weekend bool) bool {
			c := calendarFor(startMin, length, weekend)
			ta := instant(a)
			tb := ta.Add(time.Duration(ab) * time.Minute)
			tc := tb.Add(time.Duration(bc) * time.Minute)
			return c.Elapsed(ta, tc) == c.Elapsed(ta, tb)+c.Elapsed(tb, tc)
		},
		gen.IntRange(0, 23*60),
		gen.IntRange(0, 24*60),
		gen.IntRange(0, 7*24*60),
		gen.IntRange(0, 3*24*60),
		gen.IntRange(0, 3*24*60),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
