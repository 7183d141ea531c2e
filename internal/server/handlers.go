package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/snapkiosk/boothd/internal/booth"
	"github.com/snapkiosk/boothd/internal/domain"
	apperrors "github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/idempotency"
)

const idempotencyHeader = "Idempotency-Key"

type createSessionRequest struct {
	MaxRetries       *int `json:"maxRetries"`
	CountdownSeconds *int `json:"countdownSeconds"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	fingerprint := fmt.Sprintf("create|%s|%s", intOrDash(req.MaxRetries), intOrDash(req.CountdownSeconds))
	key := c.Request().Header.Get(idempotencyHeader)
	session, err := idempotency.Do(s.idem, key, fingerprint, s.config.IdempotencyTTL, func() (domain.Session, error) {
		return s.orch.Create(booth.CreateOptions{
			MaxRetries:       req.MaxRetries,
			CountdownSeconds: req.CountdownSeconds,
		}), nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) handleGetSession(c echo.Context) error {
	session, err := s.orch.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

type selectTemplateRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *Server) handleSelectTemplate(c echo.Context) error {
	id := c.Param("id")

	var req selectTemplateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.TemplateID == "" {
		return apperrors.ValidationError("templateId is required")
	}

	return s.replied(c, fmt.Sprintf("selectTemplate|%s|%s", id, req.TemplateID), func() (domain.Session, error) {
		return s.orch.SelectTemplate(id, req.TemplateID)
	})
}

func (s *Server) handleEnterCountdown(c echo.Context) error {
	id := c.Param("id")
	session, err := s.orch.EnterCountdown(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

type captureRequest struct {
	AttemptIndex *int `json:"attemptIndex"`
}

func (s *Server) handleCapture(c echo.Context) error {
	id := c.Param("id")

	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	return s.replied(c, fmt.Sprintf("capture|%s|%s", id, intOrDash(req.AttemptIndex)), func() (domain.Session, error) {
		return s.orch.Capture(id, req.AttemptIndex)
	})
}

type retryRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRetry(c echo.Context) error {
	id := c.Param("id")

	var req retryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	return s.replied(c, fmt.Sprintf("retry|%s|%s", id, req.Reason), func() (domain.Session, error) {
		return s.orch.Retry(id, req.Reason)
	})
}

func (s *Server) handleConfirm(c echo.Context) error {
	id := c.Param("id")

	return s.replied(c, fmt.Sprintf("confirm|%s", id), func() (domain.Session, error) {
		return s.orch.Confirm(id)
	})
}

type finishRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleFinish(c echo.Context) error {
	id := c.Param("id")

	var req finishRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	return s.replied(c, fmt.Sprintf("finish|%s|%s", id, req.Reason), func() (domain.Session, error) {
		return s.orch.Finish(id, req.Reason)
	})
}

func (s *Server) handleListTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"templates": s.orch.Templates(),
	})
}

func (s *Server) handleCameraStatus(c echo.Context) error {
	status, err := s.orch.CameraStatus(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("camera agent status check failed", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleDownload(c echo.Context) error {
	if !s.downloadLim.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	}

	token := c.Param("token")
	rec, ok := s.tokens.GetValid(token)
	if !ok {
		return apperrors.GoneError("download link expired or unknown")
	}

	session, err := s.orch.Get(rec.SessionID)
	if err != nil {
		return apperrors.GoneError("session no longer available")
	}
	if session.FinalURL == "" {
		return apperrors.GoneError("final image no longer available")
	}

	if strings.HasPrefix(session.FinalURL, "http://") || strings.HasPrefix(session.FinalURL, "https://") {
		return c.Redirect(http.StatusFound, session.FinalURL)
	}
	return c.File(strings.TrimPrefix(session.FinalURL, "file://"))
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// replied wraps a mutating lifecycle call in the idempotency cache. The
// caller-supplied key comes from the Idempotency-Key header; the fingerprint
// binds it to this exact operation and argument set so a reused key cannot
// silently replay a different request. Blank key means no replay protection.
func (s *Server) replied(c echo.Context, fingerprint string, op func() (domain.Session, error)) error {
	key := c.Request().Header.Get(idempotencyHeader)

	session, err := idempotency.Do(s.idem, key, fingerprint, s.config.IdempotencyTTL, op)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}
