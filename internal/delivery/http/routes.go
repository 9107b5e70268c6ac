package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dealscout/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API routes
	api := router.Group("/api")
	if cfg.RateLimit.PerIP > 0 {
		api.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	}
	{
		api.GET("/search", handler.Search)
		api.GET("/stores", handler.ListStores)
		api.POST("/chat", handler.Chat)
		api.POST("/compare", handler.Compare)
	}

	return router
}
