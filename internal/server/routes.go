package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session lifecycle
	api := s.echo.Group("/api/v1")
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.POST("/sessions/:id/select-template", s.handleSelectTemplate)
	api.POST("/sessions/:id/countdown", s.handleEnterCountdown)
	api.POST("/sessions/:id/capture", s.handleCapture)
	api.POST("/sessions/:id/retry", s.handleRetry)
	api.POST("/sessions/:id/confirm", s.handleConfirm)
	api.POST("/sessions/:id/finish", s.handleFinish)

	// Catalog and camera pre-flight
	api.GET("/templates", s.handleListTemplates)
	api.GET("/camera/status", s.handleCameraStatus)

	// Public delivery endpoint (rate-limited, token is the only credential)
	s.echo.GET("/d/:token", s.handleDownload)

	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/health/live")
	})
}
