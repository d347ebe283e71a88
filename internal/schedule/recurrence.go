package schedule

import (
	"time"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// monthsAhead bounds the monthly search. Every day 1..31 occurs at least
// once in any run of 12 consecutive months.
const monthsAhead = 12

// NextRun computes the next execution instant of s relative to now. All
// arithmetic happens in now's location. The zero time means the schedule
// has no further runs (its end date has passed).
//
// One-shot schedules with a date are returned verbatim, even when in the
// past; the caller decides whether such a run is still actionable.
func NextRun(s model.Schedule, now time.Time) time.Time {
	rec := s.Window.Recurrence
	start := s.Window.StartTime

	if rec.Type == model.RecurOnce {
		if d, ok := rec.OnceDate(); ok {
			return start.On(d.Year, d.Month, d.Day, now.Location())
		}
		return nextDaily(start, now)
	}

	ref := now
	if from, ok := rec.Starts(); ok {
		// the first valid day starts at its midnight; step just before it so
		// a start time at 00:00 on that day still qualifies
		if first := from.In(now.Location()); first.After(now) {
			ref = first.Add(-time.Nanosecond)
		}
	}

	var next time.Time
	switch rec.Type {
	case model.RecurDaily:
		next = nextDaily(start, ref)
	case model.RecurWeekly:
		next = nextWeekly(start, rec.Days, ref)
	case model.RecurMonthly:
		next = nextMonthly(start, rec.DayOfMonth, ref)
	}
	if next.IsZero() {
		return next
	}

	if until, ok := rec.Ends(); ok && model.DateOf(next).After(until) {
		return time.Time{}
	}
	return next
}

func nextDaily(start model.TimeOfDay, now time.Time) time.Time {
	y, m, d := now.Date()
	next := start.On(y, m, d, now.Location())
	if !now.Before(next) {
		next = start.On(y, m, d+1, now.Location())
	}
	return next
}

// nextWeekly scans today and the following seven days, so every weekday is
// covered even when today's start time has already passed.
func nextWeekly(start model.TimeOfDay, days []time.Weekday, now time.Time) time.Time {
	if len(days) == 0 {
		return time.Time{}
	}
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}

	y, m, d := now.Date()
	for offset := 0; offset <= 7; offset++ {
		candidate := start.On(y, m, d+offset, now.Location())
		if set[candidate.Weekday()] && candidate.After(now) {
			return candidate
		}
	}
	return time.Time{}
}

// nextMonthly returns day-of-month at start time in the current month, or
// the following months once it has passed. Months that do not contain the
// day (the 31st in April, the 30th in February) are skipped, never clamped.
func nextMonthly(start model.TimeOfDay, day int, now time.Time) time.Time {
	if day < 1 || day > 31 {
		return time.Time{}
	}
	y, m, _ := now.Date()
	for i := 0; i <= monthsAhead; i++ {
		first := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, now.Location())
		if day > DaysIn(first.Year(), first.Month()) {
			continue
		}
		candidate := start.On(first.Year(), first.Month(), day, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	return time.Time{}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
