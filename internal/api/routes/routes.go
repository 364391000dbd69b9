package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudvend/topup-bot/internal/api/handlers"
	"github.com/cloudvend/topup-bot/internal/api/middleware"
	"github.com/cloudvend/topup-bot/internal/infrastructure/di"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	if container.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware - order matters
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	webhookHandlers := handlers.NewWebhookHandlers(container.GetReconcileService(), container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.Config, container.Bot.Ready)

	router.POST("/webhook/midtrans", webhookHandlers.HandleMidtransNotification)

	router.GET("/health", healthHandlers.HandleHealth)
	router.GET("/test", healthHandlers.HandleTest)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(handlers.HandleNotFound)

	return router
}
