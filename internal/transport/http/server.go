// Package http provides the HTTP server for the pipeline: the v1 run API, the
// progress WebSocket and the rendered videos.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/hub"
	"github.com/xiaot623/manimate/internal/service"
	v1 "github.com/xiaot623/manimate/internal/transport/http/v1"
	"github.com/xiaot623/manimate/internal/transport/ws"
)

// NewServer creates and configures the HTTP server.
func NewServer(cfg *config.Config, svc *service.Service, h *hub.Hub, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)
	e.Static("/output", cfg.OutputDir)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"connections": h.GetConnectionCount(),
			"sessions":    h.GetSessionCount(),
		})
	})

	return e
}
