// Package server exposes the booth lifecycle over HTTP.
package server

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/snapkiosk/boothd/internal/booth"
	"github.com/snapkiosk/boothd/internal/config"
	"github.com/snapkiosk/boothd/internal/delivery"
	apperrors "github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/idempotency"
)

// downloadRate bounds the public delivery endpoint: tokens are guessable only
// by brute force, and this keeps brute force slow.
const (
	downloadRatePerSecond = 5
	downloadBurst         = 10
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	orch        *booth.Orchestrator
	idem        *idempotency.Cache
	tokens      *delivery.Store
	clock       clockwork.Clock
	downloadLim *rate.Limiter
	startTime   time.Time
}

func NewServer(cfg *config.Config, orch *booth.Orchestrator, idem *idempotency.Cache, tokens *delivery.Store, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		orch:        orch,
		idem:        idem,
		tokens:      tokens,
		clock:       clock,
		downloadLim: rate.NewLimiter(rate.Limit(downloadRatePerSecond), downloadBurst),
		startTime:   time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(":" + s.config.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
