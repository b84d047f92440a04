package http

import (
	"github.com/gin-gonic/gin"
	"github.com/kiranacompare/backend/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger.Named("access")))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}

	api := router.Group("/api")
	api.Use(BodyLimitMiddleware(maxBody))
	api.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		// serverless proxy contract
		api.POST("/analyze", handler.ProxyAnalyze)

		v1 := api.Group("/v1")
		{
			v1.POST("/analysis", handler.Analyze)
		}
	}

	return router
}
