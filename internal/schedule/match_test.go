package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

func TestActiveAt_Window(t *testing.T) {
	s := windowed("a", "08:00", "10:00", model.Daily(), model.PriorityNormal)

	assert.False(t, ActiveAt(s, at(2025, 1, 6, 7, 59)))
	assert.True(t, ActiveAt(s, at(2025, 1, 6, 8, 0)))
	assert.True(t, ActiveAt(s, at(2025, 1, 6, 9, 59)))
	assert.False(t, ActiveAt(s, at(2025, 1, 6, 10, 0)))
}

func TestActiveAt_Recurrence(t *testing.T) {
	weekly := windowed("w", "09:00", "11:00", model.Weekly(time.Monday), model.PriorityHigh)
	assert.True(t, ActiveAt(weekly, at(2025, 1, 6, 9, 30)))
	assert.False(t, ActiveAt(weekly, at(2025, 1, 7, 9, 30)))

	monthly := windowed("m", "09:00", "11:00", model.Monthly(7), model.PriorityHigh)
	assert.True(t, ActiveAt(monthly, at(2025, 1, 7, 9, 30)))
	assert.False(t, ActiveAt(monthly, at(2025, 1, 6, 9, 30)))

	once := windowed("o", "09:00", "11:00", model.OnceOn(model.Date{Year: 2025, Month: 1, Day: 6}), model.PriorityHigh)
	assert.True(t, ActiveAt(once, at(2025, 1, 6, 9, 30)))
	assert.False(t, ActiveAt(once, at(2025, 1, 13, 9, 30)))
}

func TestActiveAt_DateBounds(t *testing.T) {
	rec := model.Daily()
	rec.StartDate = date(2025, 1, 6)
	rec.EndDate = date(2025, 1, 8)
	s := windowed("d", "09:00", "11:00", rec, model.PriorityNormal)

	assert.False(t, ActiveAt(s, at(2025, 1, 5, 9, 30)))
	assert.True(t, ActiveAt(s, at(2025, 1, 6, 9, 30)))
	assert.True(t, ActiveAt(s, at(2025, 1, 8, 9, 30)))
	assert.False(t, ActiveAt(s, at(2025, 1, 9, 9, 30)))

	s.Window.Recurrence.NoEndDate = true
	assert.True(t, ActiveAt(s, at(2025, 1, 9, 9, 30)))
}

func TestActiveAt_Terminated(t *testing.T) {
	s := windowed("a", "08:00", "10:00", model.Daily(), model.PriorityNormal)
	done := at(2025, 1, 5, 10, 0)
	s.Metadata.TerminatedAt = &done

	assert.False(t, ActiveAt(s, at(2025, 1, 6, 9, 0)))
}

func TestPhaseOf(t *testing.T) {
	now := at(2025, 1, 6, 9, 30)
	s := windowed("a", "08:00", "10:00", model.Daily(), model.PriorityNormal)

	assert.Equal(t, PhaseArmed, PhaseOf(s, model.ActivationState{}, now))
	assert.Equal(t, PhaseActive, PhaseOf(s, model.ActivationState{ActiveID: "a"}, now))
	assert.Equal(t, PhaseCooldown, PhaseOf(s, model.ActivationState{ActiveID: "a"}, at(2025, 1, 6, 10, 0)))

	s.Enabled = false
	assert.Equal(t, PhaseDisabled, PhaseOf(s, model.ActivationState{}, now))

	s.Metadata.TerminatedAt = &now
	assert.Equal(t, PhaseTerminated, PhaseOf(s, model.ActivationState{}, now))
}

func TestWindowKey(t *testing.T) {
	s := windowed("a", "08:00", "10:00", model.Daily(), model.PriorityNormal)

	assert.Equal(t, WindowKey(s, at(2025, 1, 6, 8, 0)), WindowKey(s, at(2025, 1, 6, 9, 59)))
	assert.NotEqual(t, WindowKey(s, at(2025, 1, 6, 8, 0)), WindowKey(s, at(2025, 1, 7, 8, 0)))
}
