package schedule

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPlaylistNotFound indicates a schedule references a playlist that does not exist.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrTickInProgress is returned when a tick is requested while another one runs.
	ErrTickInProgress = errors.New("activation tick already in progress")
)

// ValidationError lists every problem found in a candidate schedule.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid schedule: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) empty() bool { return len(e.Problems) == 0 }

// ConflictError carries the schedules a candidate overlaps with.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.OverlapWindow))
	}
	return "schedule conflicts with: " + strings.Join(names, ", ")
}

// NotFoundError is returned for unknown schedule ids.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("schedule %q not found", e.ID)
}

// PersistenceError wraps failures reading or writing the schedule document.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("schedule store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PlaybackError wraps a failed player call. It is only ever logged.
type PlaybackError struct {
	Action     string
	ScheduleID string
	Err        error
}

func (e *PlaybackError) Error() string {
	if e.ScheduleID == "" {
		return fmt.Sprintf("player %s: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("player %s for schedule %s: %v", e.Action, e.ScheduleID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
