package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/http/api"
	"github.com/Nixie-Tech-LLC/signage/internal/http/api/admin/control/packets"
	"github.com/Nixie-Tech-LLC/signage/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
	"github.com/Nixie-Tech-LLC/signage/internal/scheduler"
)

// ScheduleService is what the endpoints need from the schedule service.
type ScheduleService interface {
	List(ctx context.Context, enabled *bool) ([]model.Schedule, error)
	Get(ctx context.Context, id string) (model.Schedule, error)
	Create(ctx context.Context, d schedule.Draft) (model.Schedule, error)
	Update(ctx context.Context, id string, d schedule.Draft) (model.Schedule, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (model.Schedule, error)
	CheckConflicts(ctx context.Context, d schedule.Draft, excludeID string) ([]schedule.Conflict, error)
}

// Activation is the slice of the activation loop exposed over HTTP.
type Activation interface {
	State(ctx context.Context) (model.ActivationState, error)
	Tick(ctx context.Context) (*scheduler.TickReport, error)
}

type ScheduleController struct {
	schedules  ScheduleService
	activation Activation
	clock      schedule.Clock
	onChange   func()
}

func NewScheduleController(schedules ScheduleService, activation Activation, clock schedule.Clock, onChange func()) *ScheduleController {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &ScheduleController{schedules: schedules, activation: activation, clock: clock, onChange: onChange}
}

// ScheduleModule mounts the schedule endpoints. onChange runs after every
// successful mutation so the activation loop can react without waiting for
// its next interval.
func ScheduleModule(schedules ScheduleService, activation Activation, clock schedule.Clock, onChange func()) api.Module {
	ctl := NewScheduleController(schedules, activation, clock, onChange)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/schedules", ctl.listSchedules)
		c.POST("/schedules", ctl.createSchedule)

		// static paths before :id
		c.GET("/schedules/active", ctl.activeSchedule)
		c.POST("/schedules/conflicts", ctl.checkConflicts)
		c.POST("/schedules/check", ctl.runCheck)

		c.GET("/schedules/:id", ctl.getSchedule)
		c.PUT("/schedules/:id", ctl.updateSchedule)
		c.PATCH("/schedules/:id/toggle", ctl.toggleSchedule)
		c.DELETE("/schedules/:id", ctl.deleteSchedule)
	})
}

// state returns the loop's state, or an empty one when unavailable; phases
// then degrade to ARMED/DISABLED instead of failing the request.
func (s *ScheduleController) state(ctx *gin.Context) model.ActivationState {
	if s.activation == nil {
		return model.ActivationState{}
	}
	state, err := s.activation.State(ctx.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("activation state unavailable")
		return model.ActivationState{}
	}
	return state
}

func (s *ScheduleController) respond(ctx *gin.Context, sc model.Schedule) packets.ScheduleResponse {
	return packets.NewScheduleResponse(sc, s.state(ctx), s.clock.Now())
}

func bindSchedule(ctx *gin.Context) (packets.ScheduleRequest, *api.APIError) {
	var request packets.ScheduleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return request, &api.APIError{Code: http.StatusBadRequest, Message: "invalid JSON body: " + err.Error()}
	}
	return request, nil
}

// GET /api/schedules[?enabled=true|false]
func (s *ScheduleController) listSchedules(ctx *gin.Context) (any, *api.APIError) {
	var enabled *bool
	if raw := ctx.Query("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &api.APIError{Code: http.StatusBadRequest, Message: "enabled must be true or false"}
		}
		enabled = &v
	}

	list, err := s.schedules.List(ctx.Request.Context(), enabled)
	if err != nil {
		return nil, api.FromError(err, "failed to list schedules")
	}

	state := s.state(ctx)
	now := s.clock.Now()
	response := make([]packets.ScheduleResponse, 0, len(list))
	for _, it := range list {
		response = append(response, packets.NewScheduleResponse(it, state, now))
	}
	return response, nil
}

// GET /api/schedules/:id
func (s *ScheduleController) getSchedule(ctx *gin.Context) (any, *api.APIError) {
	sc, err := s.schedules.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		return nil, api.FromError(err, "failed to load schedule")
	}
	return s.respond(ctx, sc), nil
}

// POST /api/schedules
func (s *ScheduleController) createSchedule(ctx *gin.Context) (any, *api.APIError) {
	request, apiErr := bindSchedule(ctx)
	if apiErr != nil {
		return nil, apiErr
	}

	draft := request.ToDraft()
	if user, ok := middleware.GetCurrentUser(ctx); ok {
		draft.CreatedBy = user.Username
	}
	sc, err := s.schedules.Create(ctx.Request.Context(), draft)
	if err != nil {
		return nil, api.FromError(err, "could not create schedule")
	}
	s.onChange()
	return api.Created(s.respond(ctx, sc)), nil
}

// PUT /api/schedules/:id
func (s *ScheduleController) updateSchedule(ctx *gin.Context) (any, *api.APIError) {
	request, apiErr := bindSchedule(ctx)
	if apiErr != nil {
		return nil, apiErr
	}

	sc, err := s.schedules.Update(ctx.Request.Context(), ctx.Param("id"), request.ToDraft())
	if err != nil {
		return nil, api.FromError(err, "could not update schedule")
	}
	s.onChange()
	return s.respond(ctx, sc), nil
}

// PATCH /api/schedules/:id/toggle
func (s *ScheduleController) toggleSchedule(ctx *gin.Context) (any, *api.APIError) {
	sc, err := s.schedules.Toggle(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		return nil, api.FromError(err, "could not toggle schedule")
	}
	s.onChange()
	return s.respond(ctx, sc), nil
}

// DELETE /api/schedules/:id
func (s *ScheduleController) deleteSchedule(ctx *gin.Context) (any, *api.APIError) {
	if err := s.schedules.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		return nil, api.FromError(err, "could not delete schedule")
	}
	s.onChange()
	return packets.MessageResponse{Message: "deleted"}, nil
}

// POST /api/schedules/conflicts
func (s *ScheduleController) checkConflicts(ctx *gin.Context) (any, *api.APIError) {
	var request packets.ConflictCheckRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "invalid JSON body: " + err.Error()}
	}

	conflicts, err := s.schedules.CheckConflicts(ctx.Request.Context(), request.ToDraft(), request.ExcludeID)
	if err != nil {
		return nil, api.FromError(err, "could not check conflicts")
	}
	return packets.ConflictsResponse{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// POST /api/schedules/check
func (s *ScheduleController) runCheck(ctx *gin.Context) (any, *api.APIError) {
	if s.activation == nil {
		return nil, &api.APIError{Code: http.StatusServiceUnavailable, Message: "activation loop not running"}
	}
	report, err := s.activation.Tick(ctx.Request.Context())
	if errors.Is(err, schedule.ErrTickInProgress) {
		return nil, &api.APIError{Code: http.StatusConflict, Message: "a check is already running"}
	}
	if err != nil {
		return nil, api.FromError(err, "check failed")
	}
	return report, nil
}

// GET /api/schedules/active
func (s *ScheduleController) activeSchedule(ctx *gin.Context) (any, *api.APIError) {
	if s.activation == nil {
		return packets.ActiveResponse{}, nil
	}
	state, err := s.activation.State(ctx.Request.Context())
	if err != nil {
		return nil, api.FromError(err, "could not read activation state")
	}

	response := packets.ActiveResponse{State: state}
	if !state.HasActive() {
		return response, nil
	}

	sc, err := s.schedules.Get(ctx.Request.Context(), state.ActiveID)
	var nf *schedule.NotFoundError
	switch {
	case errors.As(err, &nf):
		// deleted while playing; the state still describes it
	case err != nil:
		return nil, api.FromError(err, "could not load active schedule")
	default:
		r := packets.NewScheduleResponse(sc, state, s.clock.Now())
		response.Schedule = &r
	}
	return response, nil
}
