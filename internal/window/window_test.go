package window

import (
	"errors"
	"testing"
	"time"

	"wildcut/internal/services"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("America/New_York", 38.2120, -85.2230)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	r.nowSource = func() time.Time {
		return time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC)
	}
	return r
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":             ModeFullDay,
		"day":          ModeFullDay,
		"DawnToDusk":   ModeDawnToDusk,
		"dusk-to-dawn": ModeDuskToDawn,
		"custom":       ModeCustom,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseMode("midday"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestResolveFullDayDefaultsToYesterday(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{Mode: ModeFullDay})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	win := windows[0]
	if win.Day != "2026-06-15" {
		t.Fatalf("expected yesterday 2026-06-15, got %s", win.Day)
	}
	// EDT midnight is 04:00 UTC.
	if got := win.Start.Format(time.RFC3339); got != "2026-06-15T04:00:00Z" {
		t.Fatalf("unexpected start %s", got)
	}
	if win.Duration() != 24*time.Hour {
		t.Fatalf("unexpected duration %s", win.Duration())
	}
}

func TestResolveMultiDayProducesOneWindowPerDay(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{
		StartDate: "2026-06-10",
		EndDate:   "2026-06-12",
		Mode:      ModeFullDay,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].Start.Before(windows[i-1].End) {
			t.Fatalf("windows overlap: %v then %v", windows[i-1], windows[i])
		}
		if !windows[i].Start.Equal(windows[i-1].End) {
			t.Fatalf("full-day windows should abut: %v then %v", windows[i-1], windows[i])
		}
	}
}

func TestResolveDawnToDuskWithinDay(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{StartDate: "2026-06-15", Mode: ModeDawnToDusk})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	win := windows[0]
	dayStart := time.Date(2026, 6, 15, 0, 0, 0, 0, r.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	if win.Start.Before(dayStart.UTC()) || win.End.After(dayEnd.UTC()) {
		t.Fatalf("twilight window escapes its day: %v", win)
	}
	if !win.Start.Before(win.End) {
		t.Fatalf("start not before end: %v", win)
	}
	// Mid-June daylight in Kentucky runs well over 12 hours.
	if win.Duration() < 12*time.Hour {
		t.Fatalf("suspiciously short daylight window: %s", win.Duration())
	}
}

func TestResolveDuskToDawnCrossesMidnight(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{StartDate: "2026-06-15", Mode: ModeDuskToDawn})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	win := windows[0]
	nextMidnight := time.Date(2026, 6, 16, 0, 0, 0, 0, r.Location()).UTC()
	if !win.Start.Before(nextMidnight) {
		t.Fatalf("dusk should fall before local midnight: %v", win.Start)
	}
	if !win.End.After(nextMidnight) {
		t.Fatalf("dawn should fall after local midnight, got %v", win.End)
	}
}

func TestResolveTwilightOffsets(t *testing.T) {
	r := newTestResolver(t)
	base, err := r.Resolve(Request{StartDate: "2026-06-15", Mode: ModeDawnToDusk})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	shifted, err := r.Resolve(Request{
		StartDate:  "2026-06-15",
		Mode:       ModeDawnToDusk,
		DawnOffset: -30 * time.Minute,
		DuskOffset: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Resolve with offsets: %v", err)
	}
	if got := base[0].Start.Sub(shifted[0].Start); got != 30*time.Minute {
		t.Fatalf("dawn offset not applied: delta %s", got)
	}
	if got := shifted[0].End.Sub(base[0].End); got != 30*time.Minute {
		t.Fatalf("dusk offset not applied: delta %s", got)
	}
}

func TestResolveTwilightPerDay(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{
		StartDate: "2026-03-01",
		EndDate:   "2026-03-20",
		Mode:      ModeDawnToDusk,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Approaching the equinox, day length changes noticeably; identical
	// durations would mean one day's twilight times were reused.
	first := windows[0].Duration()
	last := windows[len(windows)-1].Duration()
	if last-first < 10*time.Minute {
		t.Fatalf("day length did not grow over March: first=%s last=%s", first, last)
	}
}

func TestResolveCustomWindow(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{
		StartDate: "2026-06-15",
		Mode:      ModeCustom,
		StartTime: "06:30",
		EndTime:   "09:00",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	win := windows[0]
	if win.Duration() != 150*time.Minute {
		t.Fatalf("unexpected duration %s", win.Duration())
	}
	if got := win.Start.Format(time.RFC3339); got != "2026-06-15T10:30:00Z" {
		t.Fatalf("unexpected start %s", got)
	}
}

func TestResolveCustomWindowWrapsMidnight(t *testing.T) {
	r := newTestResolver(t)
	windows, err := r.Resolve(Request{
		StartDate: "2026-06-15",
		Mode:      ModeCustom,
		StartTime: "22:00",
		EndTime:   "02:00",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := windows[0].Duration(); got != 4*time.Hour {
		t.Fatalf("wrap-around duration wrong: %s", got)
	}
}

func TestResolveSkipsDaysWithoutTwilight(t *testing.T) {
	r := newTestResolver(t)
	realDawn, realDusk := r.dawnAt, r.duskAt
	midnightSun := func(day time.Time) bool {
		return day.Format("2006-01-02") == "2026-06-16"
	}
	r.dawnAt = func(day time.Time) (time.Time, error) {
		if midnightSun(day) {
			return time.Time{}, errors.New("sun never reaches 6 degrees below the horizon")
		}
		return realDawn(day)
	}
	r.duskAt = func(day time.Time) (time.Time, error) {
		if midnightSun(day) {
			return time.Time{}, errors.New("sun never reaches 6 degrees below the horizon")
		}
		return realDusk(day)
	}

	windows, err := r.Resolve(Request{
		StartDate: "2026-06-15",
		EndDate:   "2026-06-17",
		Mode:      ModeDawnToDusk,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected the failing day to be dropped, got %d windows", len(windows))
	}
	if windows[0].Day != "2026-06-15" || windows[1].Day != "2026-06-17" {
		t.Fatalf("unexpected surviving days: %s, %s", windows[0].Day, windows[1].Day)
	}
}

func TestResolveFailsWhenNoDayHasTwilight(t *testing.T) {
	r := newTestResolver(t)
	r.dawnAt = func(day time.Time) (time.Time, error) {
		return time.Time{}, errors.New("sun never reaches 6 degrees below the horizon")
	}
	r.duskAt = r.dawnAt

	_, err := r.Resolve(Request{StartDate: "2026-06-15", Mode: ModeDawnToDusk})
	if !errors.Is(err, services.ErrPartialData) {
		t.Fatalf("expected partial-data error when every day lacks twilight, got %v", err)
	}
}

func TestResolveRejectsReversedRange(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve(Request{StartDate: "2026-06-15", EndDate: "2026-06-10"}); err == nil {
		t.Fatal("expected error for reversed date range")
	}
}

func TestResolveCustomRequiresTimes(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.Resolve(Request{StartDate: "2026-06-15", Mode: ModeCustom}); err == nil {
		t.Fatal("expected error for custom window without times")
	}
}
