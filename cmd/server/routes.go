package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/signage/internal/config"
	"github.com/Nixie-Tech-LLC/signage/internal/http/api"
	authapi "github.com/Nixie-Tech-LLC/signage/internal/http/api/admin/auth/endpoints"
	controlapi "github.com/Nixie-Tech-LLC/signage/internal/http/api/admin/control/endpoints"
	"github.com/Nixie-Tech-LLC/signage/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/signage/internal/metrics"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, eng *engine, onChange func()) {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	schedules := controlapi.ScheduleModule(eng.service, eng.activator, eng.clock, onChange)

	if !cfg.AuthEnabled() {
		api.MountGroup(r, api.GroupConfig{Prefix: "/api"}, schedules)
		return
	}

	admin := middleware.Admin{Username: cfg.AdminUser, PasswordHash: cfg.AdminPasswordHash}
	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api",
		Auth:   false,
	},
		authapi.AuthPublicModule(cfg.JWTSecret, admin),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		authapi.AuthSessionModule(cfg.JWTSecret, admin),
		schedules,
	)
}
