package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/http/api"
	"github.com/Nixie-Tech-LLC/signage/internal/http/api/admin/auth/packets"
	"github.com/Nixie-Tech-LLC/signage/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// AuthPublicModule mounts the public login endpoint (/auth/login)
func AuthPublicModule(jwtSecret string, admin middleware.Admin) api.Module {
	ctl := newAccountManager(jwtSecret, admin)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/auth/login", ctl.adminLogin)
	})
}

// AuthSessionModule mounts session endpoints (JWT required)
func AuthSessionModule(jwtSecret string, admin middleware.Admin) api.Module {
	ctl := newAccountManager(jwtSecret, admin)
	return api.ModuleFunc(func(c *api.Controller) {
		c.USER_GET("/auth/session", ctl.currentSession)
	})
}

type AccountManager struct {
	jwtSecret string
	admin     middleware.Admin
}

func newAccountManager(secret string, admin middleware.Admin) *AccountManager {
	return &AccountManager{jwtSecret: secret, admin: admin}
}

// POST /api/auth/login
func (a *AccountManager) adminLogin(ctx *gin.Context) (any, *api.APIError) {
	var request packets.LoginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	user, err := a.admin.Authenticate(request.Username, request.Password)
	if err != nil {
		log.Warn().Str("username", request.Username).Str("client_ip", ctx.ClientIP()).Msg("failed login")
		return nil, &api.APIError{Code: http.StatusUnauthorized, Message: "invalid credentials"}
	}

	token, err := middleware.GenerateJWT(user.Username, a.jwtSecret)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not generate token"}
	}

	return packets.LoginResponse{Token: token, ExpiresIn: int64(middleware.TokenTTL.Seconds())}, nil
}

// GET /api/auth/session
func (a *AccountManager) currentSession(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	return user, nil
}
