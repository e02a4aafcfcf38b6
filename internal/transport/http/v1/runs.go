package v1

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/manimate/internal/domain"
)

// StartRun starts a run for a session.
// POST /v1/sessions/:session_id/runs
func (h *Handler) StartRun(c echo.Context) error {
	sessionID := c.Param("session_id")
	var req domain.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()

	snap, err := h.service.Start(ctx, sessionID, req.Topic, req.Options)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, domain.ErrAlreadyRunning):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		log.Printf("ERROR: start run for session %s: %v", sessionID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, snap)
}

// GetRun returns the latest snapshot of a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	snap, err := h.service.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, snap)
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		val, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "after_ts must be an integer"})
		}
		afterTs = val
	}

	ctx := c.Request().Context()

	events, err := h.service.GetRunEvents(ctx, runID, afterTs)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []domain.ProgressEvent{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// CancelRun requests cancellation of a run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	if err := h.service.Cancel(ctx, runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

// CancelSession cancels the active run of a session.
// POST /v1/sessions/:session_id/cancel
func (h *Handler) CancelSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if !h.service.CancelSession(sessionID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no active run for session"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"status":     "cancelling",
	})
}
