// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store        storage.Store
	Jobs         JobRunner
	GPU          GPUProber
	Version      string
	MaxWSMessage int
	Logger       zerolog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	OCR     OCRHandler
	Session SessionHandler
	JobFeed JobFeedHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Jobs, deps.GPU),
		OCR:     NewOCRHandler(deps.Jobs, deps.Logger),
		Session: NewSessionHandler(deps.Store, deps.Logger),
		JobFeed: NewJobFeedHandler(deps.Jobs, deps.MaxWSMessage, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/gpu", handlers.Health.HandleGPU)

	e.POST("/ocr", handlers.OCR.HandleOCR)
	e.POST("/cancel", handlers.OCR.HandleCancel)

	e.POST("/save", handlers.Session.HandleSave)
	e.GET("/history", handlers.Session.HandleHistory)
	e.DELETE("/session/:id", handlers.Session.HandleDeleteSession)

	e.GET("/ws/jobs", handlers.JobFeed.HandleJobFeed)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
