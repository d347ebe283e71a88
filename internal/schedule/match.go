package schedule

import (
	"time"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// Phase is the lifecycle position of a schedule as seen by the activation loop.
type Phase string

const (
	PhaseDisabled   Phase = "DISABLED"
	PhaseArmed      Phase = "ARMED"
	PhaseActive     Phase = "ACTIVE"
	PhaseCooldown   Phase = "COOLDOWN"
	PhaseTerminated Phase = "TERMINATED"
)

// ActiveAt reports whether s is eligible to drive playback at now: the
// window contains now, the recurrence matches today and today lies inside
// the recurrence's date bounds. Enabled state is not considered.
func ActiveAt(s model.Schedule, now time.Time) bool {
	if s.Terminated() {
		return false
	}
	if !s.Window.Contains(model.TimeOfDayOf(now)) {
		return false
	}
	return MatchesDay(s, model.DateOf(now), now.Weekday())
}

// MatchesDay reports whether the recurrence of s fires on day.
func MatchesDay(s model.Schedule, day model.Date, weekday time.Weekday) bool {
	rec := s.Window.Recurrence
	if from, ok := rec.Starts(); ok && day.Before(from) {
		return false
	}
	if until, ok := rec.Ends(); ok && day.After(until) {
		return false
	}

	switch rec.Type {
	case model.RecurDaily:
		return true
	case model.RecurWeekly:
		return rec.HasDay(weekday)
	case model.RecurMonthly:
		return day.Day == rec.DayOfMonth
	case model.RecurOnce:
		if d, ok := rec.OnceDate(); ok {
			return d == day
		}
		// unpinned one-shots run on the day of their cached next run
		if s.Metadata.NextRun != nil {
			return model.DateOf(*s.Metadata.NextRun) == day
		}
		return true
	}
	return false
}

// WindowKey identifies the concrete occurrence of a schedule's window that
// contains now. Two ticks inside the same occurrence share a key.
func WindowKey(s model.Schedule, now time.Time) string {
	return s.ID + "@" + model.DateOf(now).String()
}

// PhaseOf derives the display phase of s from the loop's persisted state.
func PhaseOf(s model.Schedule, state model.ActivationState, now time.Time) Phase {
	if s.Terminated() {
		return PhaseTerminated
	}
	if state.ActiveID == s.ID {
		if s.Enabled && ActiveAt(s, now) {
			return PhaseActive
		}
		// window closed, post-actions run on the next tick
		return PhaseCooldown
	}
	if !s.Enabled {
		return PhaseDisabled
	}
	if until, ok := s.Window.Recurrence.Ends(); ok && model.DateOf(now).After(until) {
		return PhaseTerminated
	}
	return PhaseArmed
}
