package router

import (
	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/handlers"
	"github.com/firstnattapon/24wash-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds everything required for setting up routes.
type Dependencies struct {
	Config         *config.Config
	WebhookHandler *handlers.WebhookHandler
	HealthHandler  *handlers.HealthHandler
}

// SetupRouter configures and returns the main Gin engine with all routes
// defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())

	// LINE delivers all events here
	r.POST("/webhook", deps.WebhookHandler.HandleWebhook)

	r.GET("/health", deps.HealthHandler.ReadinessCheck)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
