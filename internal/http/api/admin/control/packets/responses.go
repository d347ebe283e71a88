package packets

import (
	"time"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// ScheduleResponse is a stored schedule plus its lifecycle phase.
type ScheduleResponse struct {
	model.Schedule
	Phase schedule.Phase `json:"phase"`
}

func NewScheduleResponse(s model.Schedule, state model.ActivationState, now time.Time) ScheduleResponse {
	return ScheduleResponse{Schedule: s, Phase: schedule.PhaseOf(s, state, now)}
}

type ConflictsResponse struct {
	HasConflicts bool                `json:"has_conflicts"`
	Conflicts    []schedule.Conflict `json:"conflicts"`
}

type ActiveResponse struct {
	State    model.ActivationState `json:"state"`
	Schedule *ScheduleResponse     `json:"schedule,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
