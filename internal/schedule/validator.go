package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// Draft is a schedule as submitted by a client, before any parsing.
// Nil pointers and empty strings mean "not specified".
type Draft struct {
	Name        string
	Description *string
	Playlist    string
	Enabled     *bool
	Priority    *int

	StartTime  string
	EndTime    string
	Continuous bool
	OnceOnly   bool

	RecurrenceType string
	Date           string
	Days           []int
	DayOfMonth     int
	StartDate      string
	EndDate        string
	NoEndDate      bool

	ConflictBehavior string
	PostActions      *model.PostActions

	// CreatedBy is recorded on creation only.
	CreatedBy string
}

// PlaylistGetter resolves playlists by name.
type PlaylistGetter interface {
	GetPlaylist(ctx context.Context, name string) (*model.Playlist, error)
}

// Validator turns drafts into schedules, collecting every problem it finds.
type Validator struct {
	Playlists PlaylistGetter
}

func NewValidator(playlists PlaylistGetter) *Validator {
	return &Validator{Playlists: playlists}
}

// Defaults is the base a new schedule is built on.
func Defaults() model.Schedule {
	return model.Schedule{
		Enabled:          true,
		Priority:         model.PriorityNormal,
		ConflictBehavior: model.ConflictPriority,
		PostActions:      model.PostActions{RevertDefault: true},
	}
}

// Validate checks a draft for a new schedule.
func (v *Validator) Validate(ctx context.Context, d Draft) (model.Schedule, error) {
	return v.validate(ctx, d, Defaults(), true)
}

// ValidateUpdate checks a draft replacing prev. Fields the draft leaves
// unspecified keep prev's values.
func (v *Validator) ValidateUpdate(ctx context.Context, d Draft, prev model.Schedule) (model.Schedule, error) {
	return v.validate(ctx, d, prev.Clone(), true)
}

// Merge applies d onto prev like ValidateUpdate but never consults the
// playlist store, so it can run while the store's writer lock is held.
func (v *Validator) Merge(d Draft, prev model.Schedule) (model.Schedule, error) {
	return v.validate(context.Background(), d, prev.Clone(), false)
}

func (v *Validator) validate(ctx context.Context, d Draft, s model.Schedule, lookup bool) (model.Schedule, error) {
	verr := &ValidationError{}

	s.Name = strings.TrimSpace(d.Name)
	if s.Name == "" {
		verr.add("name is required")
	}
	if d.Description != nil {
		s.Description = *d.Description
	}

	s.Playlist = strings.TrimSpace(d.Playlist)
	if s.Playlist == "" {
		verr.add("playlist is required")
	} else if lookup && v.Playlists != nil {
		if _, err := v.Playlists.GetPlaylist(ctx, s.Playlist); err != nil {
			if !errors.Is(err, ErrPlaylistNotFound) {
				return model.Schedule{}, fmt.Errorf("lookup playlist %q: %w", s.Playlist, err)
			}
			verr.add("playlist %q does not exist", s.Playlist)
		}
	}

	if d.Enabled != nil {
		s.Enabled = *d.Enabled
	}
	if d.Priority != nil {
		s.Priority = model.Priority(*d.Priority)
		if !s.Priority.Valid() {
			verr.add("priority must be between %d and %d", model.PriorityLow, model.PriorityUrgent)
		}
	}
	if d.ConflictBehavior != "" {
		s.ConflictBehavior = model.ConflictBehavior(d.ConflictBehavior)
		if !s.ConflictBehavior.Valid() {
			verr.add("conflict_behavior must be one of ignore, priority, queue")
		}
	}
	if d.PostActions != nil {
		s.PostActions = *d.PostActions
	}

	s.Window = validateWindow(d, verr)

	if !verr.empty() {
		return model.Schedule{}, verr
	}
	return s, nil
}

func validateWindow(d Draft, verr *ValidationError) model.Window {
	w := model.Window{Continuous: d.Continuous, OnceOnly: d.OnceOnly}

	startOK := false
	if strings.TrimSpace(d.StartTime) == "" {
		verr.add("start_time is required")
	} else if t, err := model.ParseTimeOfDay(d.StartTime); err != nil {
		verr.add("start_time must be HH:MM")
	} else {
		w.StartTime = t
		startOK = true
	}

	if strings.TrimSpace(d.EndTime) != "" {
		t, err := model.ParseTimeOfDay(d.EndTime)
		if err != nil {
			verr.add("end_time must be HH:MM")
		} else {
			w.EndTime = &t
			// overnight windows are not supported
			if startOK && !d.Continuous && t <= w.StartTime {
				verr.add("end_time must be after start_time")
			}
		}
	}

	w.Recurrence = validateRecurrence(d, verr)
	return w
}

func validateRecurrence(d Draft, verr *ValidationError) model.Recurrence {
	rec := model.Recurrence{Type: model.RecurrenceType(d.RecurrenceType), NoEndDate: d.NoEndDate}
	if rec.Type == "" {
		rec.Type = model.RecurOnce
	}

	switch rec.Type {
	case model.RecurOnce:
		rec.Date = parseOptionalDate("date", d.Date, verr)
	case model.RecurDaily:
	case model.RecurWeekly:
		if len(d.Days) == 0 {
			verr.add("weekly recurrence requires at least one day")
		}
		seen := make(map[int]bool, len(d.Days))
		for _, day := range d.Days {
			if day < 0 || day > 6 {
				verr.add("day %d is not a weekday (0 = Sunday .. 6 = Saturday)", day)
				continue
			}
			if !seen[day] {
				seen[day] = true
				rec.Days = append(rec.Days, time.Weekday(day))
			}
		}
	case model.RecurMonthly:
		if d.DayOfMonth < 1 || d.DayOfMonth > 31 {
			verr.add("day_of_month must be between 1 and 31")
		}
		rec.DayOfMonth = d.DayOfMonth
	default:
		verr.add("unknown recurrence type %q", d.RecurrenceType)
	}

	rec.StartDate = parseOptionalDate("start_date", d.StartDate, verr)
	if !rec.NoEndDate {
		rec.EndDate = parseOptionalDate("end_date", d.EndDate, verr)
	}
	if rec.StartDate != nil && rec.EndDate != nil && rec.EndDate.Before(*rec.StartDate) {
		verr.add("end_date must not precede start_date")
	}
	return rec
}

func parseOptionalDate(field, raw string, verr *ValidationError) *model.Date {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		verr.add("%s must be YYYY-MM-DD", field)
		return nil
	}
	return &d
}
