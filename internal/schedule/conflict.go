package schedule

import "github.com/Nixie-Tech-LLC/signage/internal/model"

// Conflict describes an existing schedule that may overlap a candidate.
type Conflict struct {
	ScheduleID    string         `json:"schedule_id"`
	Name          string         `json:"schedule_name"`
	OverlapWindow string         `json:"time_overlap"`
	Priority      model.Priority `json:"priority"`
}

// DetectConflicts reports every enabled schedule in existing whose window
// overlaps candidate's on a day both could run. The schedule with id
// excludeID is ignored so updates do not conflict with themselves.
//
// Day matching is coarse: only weekly-against-weekly pairs are
// compared exactly; once and monthly pairings are always assumed to meet.
func DetectConflicts(candidate model.Schedule, existing []model.Schedule, excludeID string) []Conflict {
	var out []Conflict
	for _, other := range existing {
		if !other.Enabled || (excludeID != "" && other.ID == excludeID) {
			continue
		}
		if !windowsOverlap(candidate.Window, other.Window) {
			continue
		}
		if !daysOverlap(candidate.Window.Recurrence, other.Window.Recurrence) {
			continue
		}
		out = append(out, Conflict{
			ScheduleID:    other.ID,
			Name:          other.Name,
			OverlapWindow: other.Window.String(),
			Priority:      other.Priority,
		})
	}
	return out
}

func windowsOverlap(a, b model.Window) bool {
	return a.StartTime < b.EffectiveEnd() && a.EffectiveEnd() > b.StartTime
}

func daysOverlap(a, b model.Recurrence) bool {
	if a.Type == model.RecurDaily || b.Type == model.RecurDaily {
		return true
	}
	if a.Type == model.RecurWeekly && b.Type == model.RecurWeekly {
		for _, d := range a.Days {
			if b.HasDay(d) {
				return true
			}
		}
		return false
	}
	return true
}
