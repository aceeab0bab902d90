package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"

	dependencyCheckTimeout = 3 * time.Second
)

type HealthHandler struct {
	config           *config.AppConfig
	logger           *logger.Logger
	db               *gorm.DB
	dependencies     []Dependency
	jobStatusManager *monitoring.JobStatusManager
}

func New(config *config.AppConfig, logger *logger.Logger, db *gorm.DB, dependencies []Dependency, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		config:           config,
		logger:           logger,
		db:               db,
		dependencies:     dependencies,
		jobStatusManager: jobStatusManager,
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	c.JSON(http.StatusOK, BasicHealthResponse{Message: "ok"})
}

// Database handles the database health check endpoint
// @Summary Database health check
// @Description Validates database connectivity
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/db [get]
func (h *HealthHandler) Database(c *gin.Context) {
	start := time.Now()
	response := HealthResponse{
		Timestamp: start,
		Checks:    map[string]HealthCheck{"database": h.checkDatabase(c.Request.Context())},
	}
	response.DurationMs = time.Since(start).Milliseconds()

	h.respond(c, response)
}

// External handles the external dependencies health check endpoint
// @Summary External dependencies health check
// @Description Pings the chain RPC, the custody signer and the price source
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	start := time.Now()
	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck, len(h.dependencies)),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, dep := range h.dependencies {
		wg.Add(1)
		go func(dep Dependency) {
			defer wg.Done()
			check := h.checkDependency(ctx, dep)
			mu.Lock()
			response.Checks[dep.Name] = check
			mu.Unlock()
		}(dep)
	}
	wg.Wait()
	response.DurationMs = time.Since(start).Milliseconds()

	h.respond(c, response)
}

func (h *HealthHandler) respond(c *gin.Context, response HealthResponse) {
	response.Status = statusHealthy
	for _, check := range response.Checks {
		if check.Status != statusHealthy {
			response.Status = statusUnhealthy
			break
		}
	}

	if response.Status != statusHealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Metadata: make(map[string]interface{})}

	if h.db == nil {
		check.Status = statusUnhealthy
		check.Error = "database connection not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		check.Status = statusUnhealthy
		check.Error = fmt.Sprintf("failed to get underlying database: %v", err)
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		check.Status = statusUnhealthy
		check.Error = err.Error()
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		}
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	stats := sqlDB.Stats()
	check.Status = statusHealthy
	check.Latency = time.Since(start).Milliseconds()
	check.Metadata["driver"] = h.db.Dialector.Name()
	check.Metadata["connection_pool"] = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open":         stats.MaxOpenConnections,
	}

	return check
}

func (h *HealthHandler) checkDependency(ctx context.Context, dep Dependency) HealthCheck {
	start := time.Now()
	check := HealthCheck{Metadata: make(map[string]interface{})}

	if dep.Pinger == nil {
		check.Status = statusUnhealthy
		check.Error = dep.Name + " not configured"
		return check
	}

	checkCtx, cancel := context.WithTimeout(ctx, dependencyCheckTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- dep.Pinger.Ping(checkCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			check.Status = statusUnhealthy
			check.Error = err.Error()
		} else {
			check.Status = statusHealthy
			if dep.Endpoint != "" {
				check.Metadata["endpoint"] = dep.Endpoint
			}
		}
	case <-checkCtx.Done():
		check.Status = statusUnhealthy
		check.Error = checkCtx.Err().Error()
		if checkCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		}
	}

	check.Latency = time.Since(start).Milliseconds()
	if check.Status != statusHealthy {
		h.logger.Warn("[HealthHandler][External] dependency unhealthy", map[string]string{
			"dependency": dep.Name,
			"error":      check.Error,
		})
	}
	return check
}
