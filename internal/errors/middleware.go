package errors

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)

// Middleware returns an Echo middleware that handles structured errors.
// It catches errors returned by handlers and converts them to appropriate HTTP responses.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo HTTPErrors (e.g. from routing or body binding middleware)
			// pass through unchanged to preserve their status codes.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				HTTPErrorsTotal.WithLabelValues(routingLabel(httpErr.Code)).Inc()
				return err
			}

			structuredErr := AsStructuredError(err)

			HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// routingLabel classifies raw echo.HTTPErrors for the error counter so that
// routing 404s and throttled downloads are not counted as internal failures.
func routingLabel(status int) string {
	if status >= 400 && status < 500 {
		return "routing"
	}
	return string(TypeInternal)
}

// logError logs at a severity matching the error class: client mistakes at
// debug, collaborator failures at warn, everything else at error.
func logError(c echo.Context, e *Error) {
	attrs := []any{
		"type", string(e.Type),
		"code", e.Code,
		"method", c.Request().Method,
		"path", c.Path(),
	}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}

	switch e.Type {
	case TypeValidation, TypeNotFound, TypeConflict, TypeIdempotencyReused, TypeGone:
		slog.Debug(e.Message, attrs...)
	case TypeExternal:
		slog.Warn(e.Message, attrs...)
	default:
		slog.Error(e.Message, attrs...)
	}
}
