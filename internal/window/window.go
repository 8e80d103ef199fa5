// Package window resolves local calendar dates into concrete UTC time
// intervals bounded by midnight or by twilight at a configured coordinate.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"wildcut/internal/services"
)

// errNoTwilight marks a day where the sun never crosses the twilight
// depression, as in polar summer and winter.
var errNoTwilight = errors.New("twilight undefined")

// Mode selects how a day's window boundaries are derived.
type Mode string

const (
	ModeFullDay    Mode = "full-day"
	ModeDawnToDusk Mode = "dawn-to-dusk"
	ModeDuskToDawn Mode = "dusk-to-dawn"
	ModeCustom     Mode = "custom"
)

// ParseMode maps user input to a Mode, tolerating common spellings.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "day", "full-day", "fullday", "full_day":
		return ModeFullDay, nil
	case "dawn-to-dusk", "dawntodusk", "dawn_to_dusk":
		return ModeDawnToDusk, nil
	case "dusk-to-dawn", "dusktodawn", "dusk_to_dawn":
		return ModeDuskToDawn, nil
	case "custom":
		return ModeCustom, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "window", "parse mode",
			fmt.Sprintf("unknown window mode %q", value), nil)
	}
}

// TimeWindow is a concrete UTC interval tagged with the local day it covers.
type TimeWindow struct {
	Start time.Time
	End   time.Time
	// Day is the local calendar day this window represents, YYYY-MM-DD.
	Day string
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether the instant falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Request describes the windows a job wants resolved.
type Request struct {
	// StartDate and EndDate are inclusive local calendar days, YYYY-MM-DD.
	// Empty StartDate means yesterday in the configured timezone. Empty
	// EndDate means StartDate.
	StartDate string
	EndDate   string
	Mode      Mode
	// StartTime and EndTime (HH:MM or HH:MM:SS, local) bound custom windows.
	StartTime string
	EndTime   string
	// DawnOffset and DuskOffset shift the twilight boundaries.
	DawnOffset time.Duration
	DuskOffset time.Duration
}

// Resolver derives UTC windows from local dates and solar position.
type Resolver struct {
	location  *time.Location
	observer  astral.Observer
	nowSource func() time.Time
	dawnAt    func(day time.Time) (time.Time, error)
	duskAt    func(day time.Time) (time.Time, error)
}

// NewResolver builds a Resolver for the given timezone name and coordinate.
func NewResolver(timezone string, latitude, longitude float64) (*Resolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "window", "load timezone", timezone, err)
	}
	r := &Resolver{
		location:  loc,
		observer:  astral.Observer{Latitude: latitude, Longitude: longitude},
		nowSource: time.Now,
	}
	r.dawnAt = func(day time.Time) (time.Time, error) {
		return astral.Dawn(r.observer, day, astral.DepressionCivil)
	}
	r.duskAt = func(day time.Time) (time.Time, error) {
		return astral.Dusk(r.observer, day, astral.DepressionCivil)
	}
	return r, nil
}

// Location exposes the resolver's timezone for callers formatting local times.
func (r *Resolver) Location() *time.Location {
	return r.location
}

// Resolve expands a Request into an ordered list of non-overlapping windows,
// one per requested local calendar day.
func (r *Resolver) Resolve(req Request) ([]TimeWindow, error) {
	startDay, err := r.parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	endDay := startDay
	if strings.TrimSpace(req.EndDate) != "" {
		endDay, err = r.parseDate(req.EndDate)
		if err != nil {
			return nil, err
		}
	}
	if endDay.Before(startDay) {
		return nil, services.Wrap(services.ErrConfiguration, "window", "resolve",
			"end date precedes start date", nil)
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeFullDay
	}

	var windows []TimeWindow
	var noTwilight []string
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		win, err := r.resolveDay(day, mode, req)
		if err != nil {
			if errors.Is(err, errNoTwilight) {
				// Twilight never occurs on this day (polar edge); drop the
				// day and keep the rest of the range.
				noTwilight = append(noTwilight, day.Format("2006-01-02"))
				continue
			}
			return nil, err
		}
		windows = append(windows, win)
	}
	if len(windows) == 0 && len(noTwilight) > 0 {
		return nil, services.Wrap(services.ErrPartialData, "window", "resolve",
			fmt.Sprintf("twilight is undefined on every requested day (%s)", strings.Join(noTwilight, ", ")), nil)
	}
	return windows, nil
}

func (r *Resolver) resolveDay(day time.Time, mode Mode, req Request) (TimeWindow, error) {
	label := day.Format("2006-01-02")
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.location)

	switch mode {
	case ModeFullDay:
		return TimeWindow{
			Start: midnight.UTC(),
			End:   midnight.AddDate(0, 0, 1).UTC(),
			Day:   label,
		}, nil

	case ModeDawnToDusk:
		dawn, err := r.dawn(day)
		if err != nil {
			return TimeWindow{}, err
		}
		dusk, err := r.dusk(day)
		if err != nil {
			return TimeWindow{}, err
		}
		start := dawn.Add(req.DawnOffset)
		end := dusk.Add(req.DuskOffset)
		if !start.Before(end) {
			return TimeWindow{}, services.Wrap(services.ErrConfiguration, "window", "resolve",
				fmt.Sprintf("dawn offset pushes start past dusk on %s", label), nil)
		}
		return TimeWindow{Start: start.UTC(), End: end.UTC(), Day: label}, nil

	case ModeDuskToDawn:
		// Day N's night runs from N's dusk to N+1's dawn, crossing midnight.
		dusk, err := r.dusk(day)
		if err != nil {
			return TimeWindow{}, err
		}
		dawn, err := r.dawn(day.AddDate(0, 0, 1))
		if err != nil {
			return TimeWindow{}, err
		}
		start := dusk.Add(req.DuskOffset)
		end := dawn.Add(req.DawnOffset)
		if !start.Before(end) {
			return TimeWindow{}, services.Wrap(services.ErrConfiguration, "window", "resolve",
				fmt.Sprintf("offsets produce an empty night window on %s", label), nil)
		}
		return TimeWindow{Start: start.UTC(), End: end.UTC(), Day: label}, nil

	case ModeCustom:
		start, err := r.combine(midnight, req.StartTime, "start_time")
		if err != nil {
			return TimeWindow{}, err
		}
		end, err := r.combine(midnight, req.EndTime, "end_time")
		if err != nil {
			return TimeWindow{}, err
		}
		if !end.After(start) {
			// An end at or before the start means the range wraps past
			// midnight into the next day.
			end = end.AddDate(0, 0, 1)
		}
		return TimeWindow{Start: start.UTC(), End: end.UTC(), Day: label}, nil

	default:
		return TimeWindow{}, services.Wrap(services.ErrConfiguration, "window", "resolve",
			fmt.Sprintf("unknown window mode %q", mode), nil)
	}
}

func (r *Resolver) dawn(day time.Time) (time.Time, error) {
	at, err := r.dawnAt(day.In(r.location))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: no dawn on %s: %v", errNoTwilight, day.Format("2006-01-02"), err)
	}
	return at, nil
}

func (r *Resolver) dusk(day time.Time) (time.Time, error) {
	at, err := r.duskAt(day.In(r.location))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: no dusk on %s: %v", errNoTwilight, day.Format("2006-01-02"), err)
	}
	return at, nil
}

func (r *Resolver) parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		yesterday := r.nowSource().In(r.location).AddDate(0, 0, -1)
		return time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, r.location), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", trimmed, r.location)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrConfiguration, "window", "parse date", trimmed, err)
	}
	return parsed, nil
}

func (r *Resolver) combine(midnight time.Time, clock, field string) (time.Time, error) {
	trimmed := strings.TrimSpace(clock)
	if trimmed == "" {
		return time.Time{}, services.Wrap(services.ErrConfiguration, "window", "resolve",
			field+" is required for custom windows", nil)
	}
	layout := "15:04"
	if strings.Count(trimmed, ":") == 2 {
		layout = "15:04:05"
	}
	parsed, err := time.Parse(layout, trimmed)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrConfiguration, "window", "parse "+field, trimmed, err)
	}
	return midnight.Add(time.Duration(parsed.Hour())*time.Hour +
		time.Duration(parsed.Minute())*time.Minute +
		time.Duration(parsed.Second())*time.Second), nil
}
