package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority orders simultaneously eligible schedules; higher wins.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityUrgent }

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ConflictBehavior is the arbitration preference declared at creation.
// It is advisory: the activation loop always picks a single winner.
type ConflictBehavior string

const (
	ConflictIgnore   ConflictBehavior = "ignore"
	ConflictPriority ConflictBehavior = "priority"
	ConflictQueue    ConflictBehavior = "queue"
)

func (c ConflictBehavior) Valid() bool {
	switch c {
	case ConflictIgnore, ConflictPriority, ConflictQueue:
		return true
	}
	return false
}

type RecurrenceType string

const (
	RecurOnce    RecurrenceType = "once"
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurOnce, RecurDaily, RecurWeekly, RecurMonthly:
		return true
	}
	return false
}

// Recurrence is a closed variant keyed by Type. Only the fields of the
// active variant are meaningful:
//   - once:    Date (falls back to StartDate)
//   - weekly:  Days (0 = Sunday)
//   - monthly: DayOfMonth
//
// StartDate, EndDate and NoEndDate bound every variant.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	Date       *Date          `json:"date,omitempty"`
	Days       []time.Weekday `json:"days,omitempty"`
	DayOfMonth int            `json:"day_of_month,omitempty"`
	StartDate  *Date          `json:"start_date,omitempty"`
	EndDate    *Date          `json:"end_date,omitempty"`
	NoEndDate  bool           `json:"no_end_date"`
}

func OnceOn(d Date) Recurrence { return Recurrence{Type: RecurOnce, Date: &d} }

func Daily() Recurrence { return Recurrence{Type: RecurDaily} }

func Weekly(days ...time.Weekday) Recurrence {
	return Recurrence{Type: RecurWeekly, Days: days}
}

func Monthly(day int) Recurrence { return Recurrence{Type: RecurMonthly, DayOfMonth: day} }

// OnceDate returns the day a one-shot recurrence fires on, if known.
func (r Recurrence) OnceDate() (Date, bool) {
	if r.Date != nil && !r.Date.IsZero() {
		return *r.Date, true
	}
	if r.StartDate != nil && !r.StartDate.IsZero() {
		return *r.StartDate, true
	}
	return Date{}, false
}

// Starts returns the first valid day of the recurrence, if bounded.
func (r Recurrence) Starts() (Date, bool) {
	if r.StartDate == nil || r.StartDate.IsZero() {
		return Date{}, false
	}
	return *r.StartDate, true
}

// Ends returns the last valid day of the recurrence, if bounded.
func (r Recurrence) Ends() (Date, bool) {
	if r.NoEndDate || r.EndDate == nil || r.EndDate.IsZero() {
		return Date{}, false
	}
	return *r.EndDate, true
}

// HasDay reports whether wd is one of the weekly days.
func (r Recurrence) HasDay(wd time.Weekday) bool {
	for _, d := range r.Days {
		if d == wd {
			return true
		}
	}
	return false
}

func (r *Recurrence) UnmarshalJSON(b []byte) error {
	type plain Recurrence
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown recurrence type %q", p.Type)
	}
	*r = Recurrence(p)
	return nil
}

// Window is the daily time span a schedule is eligible in.
type Window struct {
	StartTime  TimeOfDay  `json:"start_time"`
	EndTime    *TimeOfDay `json:"end_time,omitempty"`
	Continuous bool       `json:"continuous"`
	OnceOnly   bool       `json:"once_only"`
	Recurrence Recurrence `json:"recurrence"`
}

// EffectiveEnd is the exclusive end of the window. Continuous windows and
// windows without an end time both end at 23:59.
func (w Window) EffectiveEnd() TimeOfDay {
	if w.Continuous || w.EndTime == nil {
		return EndOfDay
	}
	return *w.EndTime
}

// Contains reports whether minute t falls in [start, end).
func (w Window) Contains(t TimeOfDay) bool {
	return t >= w.StartTime && t < w.EffectiveEnd()
}

func (w Window) String() string {
	return w.StartTime.String() + "-" + w.EffectiveEnd().String()
}

type PostActions struct {
	RevertDefault  bool `json:"revert_default"`
	StopPlayback   bool `json:"stop_playback"`
	TakeScreenshot bool `json:"take_screenshot"`
}

func (p PostActions) Any() bool {
	return p.RevertDefault || p.StopPlayback || p.TakeScreenshot
}

type Metadata struct {
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastRun      *time.Time `json:"last_run"`
	NextRun      *time.Time `json:"next_run"`
	RunCount     int        `json:"run_count"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

type Schedule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Playlist         string           `json:"playlist"`
	Enabled          bool             `json:"enabled"`
	Priority         Priority         `json:"priority"`
	Window           Window           `json:"schedule"`
	ConflictBehavior ConflictBehavior `json:"conflict_behavior"`
	PostActions      PostActions      `json:"post_actions"`
	Metadata         Metadata         `json:"metadata"`
}

// Terminated reports whether a once-only schedule has completed its run.
func (s Schedule) Terminated() bool {
	return s.Metadata.TerminatedAt != nil
}

// Clone returns a deep copy so snapshots never alias a live collection.
func (s Schedule) Clone() Schedule {
	c := s
	if s.Window.EndTime != nil {
		e := *s.Window.EndTime
		c.Window.EndTime = &e
	}
	c.Window.Recurrence.Date = cloneDate(s.Window.Recurrence.Date)
	c.Window.Recurrence.StartDate = cloneDate(s.Window.Recurrence.StartDate)
	c.Window.Recurrence.EndDate = cloneDate(s.Window.Recurrence.EndDate)
	if s.Window.Recurrence.Days != nil {
		c.Window.Recurrence.Days = append([]time.Weekday(nil), s.Window.Recurrence.Days...)
	}
	c.Metadata.LastRun = cloneTime(s.Metadata.LastRun)
	c.Metadata.NextRun = cloneTime(s.Metadata.NextRun)
	c.Metadata.TerminatedAt = cloneTime(s.Metadata.TerminatedAt)
	return c
}

// CloneSchedules deep-copies a schedule set.
func CloneSchedules(in []Schedule) []Schedule {
	out := make([]Schedule, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
