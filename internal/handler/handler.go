package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/controller"
	"github.com/dwarvesf/settlement-backend/internal/handler/health"
	"github.com/dwarvesf/settlement-backend/internal/handler/metrics"
	"github.com/dwarvesf/settlement-backend/internal/handler/oracle"
	"github.com/dwarvesf/settlement-backend/internal/handler/settlement"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	oracleService "github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

type Handler struct {
	SettlementHandler settlement.IHandler
	OracleHandler     oracle.IHandler
	HealthHandler     health.IHealthHandler
	MetricsHandler    *metrics.MetricsHandler
}

func New(appConfig *config.AppConfig, logger *logger.Logger,
	ctrl controller.IController,
	oracleSvc oracleService.IOracle,
	db *gorm.DB,
	dependencies []health.Dependency,
	metricsRegistry *prometheus.Registry,
	metricsRecorder *monitoring.BusinessMetricsRecorder,
	jobStatusManager *monitoring.JobStatusManager) *Handler {
	return &Handler{
		SettlementHandler: settlement.New(ctrl, logger),
		OracleHandler:     oracle.New(oracleSvc, logger, metricsRecorder),
		HealthHandler:     health.New(appConfig, logger, db, dependencies, jobStatusManager),
		MetricsHandler:    metrics.NewMetricsHandler(metricsRegistry),
	}
}
