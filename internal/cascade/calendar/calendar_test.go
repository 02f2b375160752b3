package calendar

import (
	"errors"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func mustCalendar(t *testing.T, start, end string, weekend bool) Calendar {
	t.Helper()
	c, err := New(start, end, weekend, saoPaulo)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	return c
}

func at(day, hour, minute int) time.Time {
	// 2026-03-02 is a Monday.
	return time.Date(2026, time.March, day, hour, minute, 0, 0, saoPaulo)
}

func TestAddWithinWindow(t *testing.T) {
	c := mustCalendar(t, "08:00", "18:00", false)
	got := c.Add(at(2, 10, 0), 30*time.Minute)
	if !got.Equal(at(2, 10, 30)) {
		t.Fatalf("expected 10:30, got %s", got)
	}
}

func TestAddCarriesOverNight(t *testing.T) {
	c := mustCalendar(t, "08:00", "18:00", false)
	got := c.Add(at(2, 17, 50), 30*time.Minute)
	if !got.Equal(at(3, 8, 20)) {
		t.Fatalf("expected next day 08:20, got %s", got)
	}
}

func TestAddSkipsWeekend(t *testing.T) {
	c := mustCalendar(t, "08:00", "18:00", false)
	// Friday 17:45 + 30m resumes Monday 08:15.
	got := c.Add(at(6, 17, 45), 30*time.Minute)
	if !got.Equal(at(9, 8, 15)) {
		t.Fatalf("expected Monday 08:15, got %s", got)
	}

	withWeekend := mustCalendar(t, "08:00", "18:00", true)
	got = withWeekend.Add(at(6, 17, 45), 30*time.Minute)
	if !got.Equal(at(7, 8, 15)) {
		t.Fatalf("expected Saturday 08:15, got %s", got)
	}
}

func TestAddBeforeOpeningStartsAtOpening(t *testing.T) {
	c := mustCalendar(t, "08:00", "18:00", false)
	got := c.Add(at(2, 6, 0), 15*time.Minute)
	if !got.Equal(at(2, 8, 15)) {
		t.Fatalf("expected 08:15, got %s", got)
	}
}

func TestElapsedIgnoresClosedHours(t *testing.T) {
	c := mustCalendar(t, "08:00", "18:00", false)
	if got := c.Elapsed(at(2, 17, 50), at(3, 8, 10)); got != 20*time.Minute {
		t.Fatalf("expected 20m, got %s", got)
	}
	if got := c.Elapsed(at(7, 9, 0), at(8, 17, 0)); got != 0 {
		t.Fatalf("expected no working time over the weekend, got %s", got)
	}
	if got := c.Elapsed(at(3, 9, 0), at(2, 9, 0)); got != 0 {
		t.Fatalf("expected zero for reversed interval, got %s", got)
	}
}

func TestEqualBoundsRunAroundTheClock(t *testing.T) {
	c := mustCalendar(t, "00:00", "00:00", true)
	start := at(7, 23, 50)
	if got := c.Add(start, 30*time.Minute); !got.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("expected wall-clock addition, got %s", got)
	}
	if got := c.Elapsed(start, start.Add(26*time.Hour)); got != 26*time.Hour {
		t.Fatalf("expected 26h, got %s", got)
	}
}

func TestNewRejectsInvertedWindow(t *testing.T) {
	_, err := New("18:00", "08:00", false, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := New("8am", "18:00", false, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for malformed clock, got %v", err)
	}
}

func TestFromSnapshotFallsBackToProvidedZone(t *testing.T) {
	snap := domain.ConfigSnapshot{WorkingHoursStart: "08:00", WorkingHoursEnd: "18:00", Timezone: "Not/AZone"}
	c, err := FromSnapshot(snap, saoPaulo)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	if c.Location() != saoPaulo {
		t.Fatalf("expected fallback zone, got %s", c.Location())
	}
}
