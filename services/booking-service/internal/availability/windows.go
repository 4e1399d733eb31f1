package availability

import (
	"time"

	"github.com/bochiedev/tulia-booking/services/booking-service/internal/model"
)

// Interval is a half-open UTC time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant:
// [a,b) overlaps [c,d) iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// ResolveWindows returns every window whose local span fully contains the
// requested interval on the date derived in that window's own timezone.
// Recurring and specific-date windows covering the same date are both
// returned; a specific date does not override the weekly pattern.
// Windows with a bad timezone or inverted span are skipped, which keeps the
// default fail-closed: no resolvable window means no availability.
func ResolveWindows(windows []model.AvailabilityWindow, req Interval) []model.AvailabilityWindow {
	if !req.Valid() {
		return nil
	}
	var matched []model.AvailabilityWindow
	for _, w := range windows {
		span, ok := windowSpan(w, req.Start)
		if !ok {
			continue
		}
		if span.Contains(req) {
			matched = append(matched, w)
		}
	}
	return matched
}

// MaxCapacity is the tie-break across windows covering the same interval:
// the most permissive capacity wins, capacities are not summed.
func MaxCapacity(windows []model.AvailabilityWindow) int {
	capacity := 0
	for _, w := range windows {
		if w.Capacity > capacity {
			capacity = w.Capacity
		}
	}
	return capacity
}

// windowSpan materializes the window's wall-clock span as a UTC interval on
// the calendar date of at, seen in the window's timezone. Returns false when
// the window does not apply to that date or is malformed.
func windowSpan(w model.AvailabilityWindow, at time.Time) (Interval, bool) {
	if w.Capacity < 1 || w.EndMinute <= w.StartMinute {
		return Interval{}, false
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return Interval{}, false
	}

	local := at.In(loc)
	year, month, day := local.Date()

	switch {
	case w.Date != nil:
		wy, wm, wd := w.Date.Date()
		if wy != year || wm != month || wd != day {
			return Interval{}, false
		}
	case w.Weekday != nil:
		if *w.Weekday < 0 || *w.Weekday > 6 || *w.Weekday != int(local.Weekday()) {
			return Interval{}, false
		}
	default:
		return Interval{}, false
	}

	// time.Date normalizes minute counts past 59, so minute-of-day values
	// land on the right wall-clock time and survive DST transitions.
	start := time.Date(year, month, day, 0, w.StartMinute, 0, 0, loc)
	end := time.Date(year, month, day, 0, w.EndMinute, 0, 0, loc)
	return Interval{Start: start.UTC(), End: end.UTC()}, true
}
