// handlers_health.go - Health check and GPU status handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	jobs    JobRunner
	gpu     GPUProber
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, jobs JobRunner, gpu GPUProber) HealthHandler {
	return &HealthHandlerImpl{version: version, jobs: jobs, gpu: gpu}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"engine":     h.jobs.EngineName(),
		"activeJobs": h.jobs.ActiveJobs(),
	})
}

// HandleGPU reports accelerator status
func (h *HealthHandlerImpl) HandleGPU(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gpu.Probe(c.Request().Context()))
}
