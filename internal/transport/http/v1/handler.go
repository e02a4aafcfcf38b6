// Package v1 provides the versioned HTTP API for pipeline runs.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/manimate/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the run routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions/:session_id/runs", h.StartRun)
	e.POST("/v1/sessions/:session_id/cancel", h.CancelSession)

	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
}
