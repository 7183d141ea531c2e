package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/snapkiosk/boothd/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  uptime,
		"version": version.Get(),
	})
}

// Readiness has no hard dependencies: sessions are in-memory and the camera
// and AI backends are allowed to be down between customers. Their health is
// reported, not gating.
func (s *Server) handleReadiness(c echo.Context) error {
	body := map[string]any{"status": "ready"}

	if status, err := s.orch.CameraStatus(c.Request().Context()); err == nil {
		body["camera"] = status
	} else {
		body["camera"] = map[string]any{"ok": false, "error": err.Error()}
	}

	return c.JSON(http.StatusOK, body)
}
