package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// APIError is rendered as {"error": Message}, plus the validation problems
// or conflicts that caused it when present.
type APIError struct {
	Code      int
	Message   string
	Problems  []string
	Conflicts []schedule.Conflict
}

func (e *APIError) body() gin.H {
	body := gin.H{"error": e.Message}
	if len(e.Problems) > 0 {
		body["errors"] = e.Problems
	}
	if e.Conflicts != nil {
		body["conflicts"] = e.Conflicts
	}
	return body
}

// Response lets a handler answer with a status other than 200.
type Response struct {
	Status int
	Body   any
}

func Created(body any) Response { return Response{Status: http.StatusCreated, Body: body} }

type HandlerFuncWithAuth func(ctx *gin.Context, user *model.User) (any, *APIError)
type HandlerFunc func(ctx *gin.Context) (any, *APIError)

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, ok := middleware.GetCurrentUser(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result, apiErr := h(ctx, user)
		render(ctx, result, apiErr)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		render(ctx, result, apiErr)
	}
}

func render(ctx *gin.Context, result any, apiErr *APIError) {
	if apiErr != nil {
		ctx.JSON(apiErr.Code, apiErr.body())
		return
	}
	if r, ok := result.(Response); ok {
		ctx.JSON(r.Status, r.Body)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// FromError maps engine errors to HTTP errors. Anything unrecognized is a
// 500 with a generic message; the cause is logged, not exposed.
func FromError(err error, fallback string) *APIError {
	var (
		verr *schedule.ValidationError
		cerr *schedule.ConflictError
		nerr *schedule.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return &APIError{Code: http.StatusBadRequest, Message: "validation failed", Problems: verr.Problems}
	case errors.As(err, &cerr):
		return &APIError{Code: http.StatusConflict, Message: "schedule conflicts with existing schedules", Conflicts: cerr.Conflicts}
	case errors.As(err, &nerr):
		return &APIError{Code: http.StatusNotFound, Message: "schedule not found"}
	}
	log.Error().Err(err).Msg(fallback)
	return &APIError{Code: http.StatusInternalServerError, Message: fallback}
}
