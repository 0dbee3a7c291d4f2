// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/upload"
)

// OCRHandler handles recognition and cancellation
type OCRHandler interface {
	HandleOCR(c echo.Context) error
	HandleCancel(c echo.Context) error
}

// SessionHandler handles saved sessions
type SessionHandler interface {
	HandleSave(c echo.Context) error
	HandleHistory(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleGPU(c echo.Context) error
}

// JobFeedHandler streams job events over a websocket
type JobFeedHandler interface {
	HandleJobFeed(c echo.Context) error
}

// JobRunner is the part of upload.Manager the handlers use.
type JobRunner interface {
	Run(ctx context.Context, req engine.Request, emit engine.Emit) (upload.Job, error)
	AbortAll() int
	HasEngine() bool
	EngineName() string
	ActiveJobs() int
	Subscribe() (<-chan upload.Event, func())
}

// GPUProber reports accelerator status.
type GPUProber interface {
	Probe(ctx context.Context) models.GPUStatus
}
