package health

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/settlement-backend/internal/consts"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
)

// criticalJobs are the jobs whose repeated failure makes the service
// unhealthy rather than degraded.
var criticalJobs = []string{
	consts.SweeperJobName,
}

// Jobs handles the background jobs health check endpoint
// @Summary Background jobs health check
// @Description Reports the status of scheduled jobs such as the stale settlement sweeper
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} JobsHealthResponse
// @Success 206 {object} JobsHealthResponse
// @Failure 503 {object} JobsHealthResponse
// @Router /health/jobs [get]
func (h *HealthHandler) Jobs(c *gin.Context) {
	start := time.Now()

	if h.jobStatusManager == nil {
		c.JSON(http.StatusServiceUnavailable, JobsHealthResponse{
			Status:     statusUnhealthy,
			Timestamp:  time.Now(),
			Jobs:       make(map[string]monitoring.JobStatus),
			DurationMs: time.Since(start).Milliseconds(),
		})
		return
	}

	jobs := h.jobStatusManager.GetAllJobStatuses()
	summary := h.jobStatusManager.GetJobsSummary()

	overallStatus := statusHealthy
	switch {
	case summary.StalledJobs > 0:
		overallStatus = statusUnhealthy
	case summary.UnhealthyJobs > 0:
		overallStatus = statusDegraded
		for _, name := range criticalJobs {
			if job, ok := jobs[name]; ok && job.Status == monitoring.JobStatusFailed && job.ConsecutiveFailures > 2 {
				overallStatus = statusUnhealthy
				break
			}
		}
	}

	response := JobsHealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Jobs:       jobs,
		Summary:    summary,
		DurationMs: time.Since(start).Milliseconds(),
	}

	statusCode := http.StatusOK
	switch overallStatus {
	case statusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	case statusDegraded:
		statusCode = http.StatusPartialContent
	}

	h.logger.Debug("[HealthHandler][Jobs] jobs health check completed", map[string]string{
		"overall_status": overallStatus,
		"total_jobs":     strconv.Itoa(summary.TotalJobs),
		"unhealthy_jobs": strconv.Itoa(summary.UnhealthyJobs),
		"stalled_jobs":   strconv.Itoa(summary.StalledJobs),
	})

	c.JSON(statusCode, response)
}
