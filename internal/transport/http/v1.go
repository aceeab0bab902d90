package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/settlement-backend/internal/handler"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, appConfig *config.AppConfig, logger *logger.Logger) {
	v1 := r.Group("/api/v1")

	limiter := NewClientRateLimiter(appConfig.ApiServer.RateLimitRPS, appConfig.ApiServer.RateLimitBurst)
	logger.Info("[loadV1Routes] settlement rate limit", map[string]string{
		"rps":   strconv.FormatFloat(appConfig.ApiServer.RateLimitRPS, 'f', -1, 64),
		"burst": strconv.Itoa(appConfig.ApiServer.RateLimitBurst),
	})

	settlements := v1.Group("/settlements")
	{
		settlements.POST("", limiter.Middleware(), h.SettlementHandler.CreateSettlement)
		settlements.GET("", h.SettlementHandler.ListSettlements)
		settlements.GET("/:reference", h.SettlementHandler.GetSettlement)
	}

	oracle := v1.Group("/oracle")
	{
		oracle.GET("/price", h.OracleHandler.GetPrice)
		oracle.GET("/cache", h.OracleHandler.GetCacheStatistics)
	}

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}

	// health check
	r.GET("/healthz", h.HealthHandler.Basic)
}
