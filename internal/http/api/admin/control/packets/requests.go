package packets

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// DayList accepts weekdays as numbers or numeric strings (0 = Sunday).
type DayList []int

func (d *DayList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("days must be a list: %w", err)
	}
	out := make(DayList, 0, len(raw))
	for _, r := range raw {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("invalid day %s", r)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid day %q", s)
		}
		out = append(out, n)
	}
	*d = out
	return nil
}

type RecurrenceRequest struct {
	Type       string  `json:"type"`
	Date       string  `json:"date"`
	Days       DayList `json:"days"`
	DayOfMonth int     `json:"day_of_month"`
	// DateSpecific is the legacy name of DayOfMonth.
	DateSpecific int    `json:"date_specific"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	NoEndDate    bool   `json:"no_end_date"`
}

type WindowRequest struct {
	StartTime  string            `json:"start_time"`
	EndTime    string            `json:"end_time"`
	Continuous bool              `json:"continuous"`
	OnceOnly   bool              `json:"once_only"`
	Recurrence RecurrenceRequest `json:"recurrence"`
}

// ScheduleRequest is the body of create, update and conflict checks.
// Field presence is checked by the validator so every problem is reported
// at once.
type ScheduleRequest struct {
	Name             string             `json:"name"`
	Description      *string            `json:"description"`
	Playlist         string             `json:"playlist"`
	Enabled          *bool              `json:"enabled"`
	Priority         *int               `json:"priority"`
	Schedule         WindowRequest      `json:"schedule"`
	ConflictBehavior string             `json:"conflict_behavior"`
	PostActions      *model.PostActions `json:"post_actions"`
}

func (r ScheduleRequest) ToDraft() schedule.Draft {
	rec := r.Schedule.Recurrence
	dayOfMonth := rec.DayOfMonth
	if dayOfMonth == 0 {
		dayOfMonth = rec.DateSpecific
	}
	return schedule.Draft{
		Name:             r.Name,
		Description:      r.Description,
		Playlist:         r.Playlist,
		Enabled:          r.Enabled,
		Priority:         r.Priority,
		StartTime:        r.Schedule.StartTime,
		EndTime:          r.Schedule.EndTime,
		Continuous:       r.Schedule.Continuous,
		OnceOnly:         r.Schedule.OnceOnly,
		RecurrenceType:   rec.Type,
		Date:             rec.Date,
		Days:             []int(rec.Days),
		DayOfMonth:       dayOfMonth,
		StartDate:        rec.StartDate,
		EndDate:          rec.EndDate,
		NoEndDate:        rec.NoEndDate,
		ConflictBehavior: r.ConflictBehavior,
		PostActions:      r.PostActions,
	}
}

// ConflictCheckRequest is a draft plus the schedule being edited, if any.
type ConflictCheckRequest struct {
	ScheduleRequest
	ExcludeID string `json:"exclude_id"`
}
