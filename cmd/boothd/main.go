package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/snapkiosk/boothd/internal/ai"
	"github.com/snapkiosk/boothd/internal/booth"
	"github.com/snapkiosk/boothd/internal/camera"
	"github.com/snapkiosk/boothd/internal/config"
	"github.com/snapkiosk/boothd/internal/delivery"
	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/idempotency"
	"github.com/snapkiosk/boothd/internal/logging"
	"github.com/snapkiosk/boothd/internal/server"
	"github.com/snapkiosk/boothd/internal/template"
	"github.com/snapkiosk/boothd/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Starting boothd",
		"version", build.Version,
		"commit", build.Commit,
		"env", cfg.AppEnv,
		"ai_mode", cfg.AIMode,
		"device_id", cfg.DeviceID)

	clock := clockwork.NewRealClock()
	catalog := template.NewStaticCatalog()
	idem := idempotency.New(clock)
	tokens := delivery.NewStore(clock)

	cam := setupCamera(cfg)
	processor := setupProcessor(cfg, catalog)

	orch := booth.NewOrchestrator(booth.Config{
		CountdownSeconds: cfg.CountdownSeconds,
		MaxRetries:       cfg.MaxRetries,
		RawBaseDir:       cfg.RawBaseDir,
		PublicBaseURL:    cfg.PublicBaseURL,
		DeliveryTokenTTL: cfg.DeliveryTokenTTL,
		CaptureTimeout:   cfg.CaptureTimeout,
		ProcessTimeout:   cfg.ProcessTimeout,
		Workers:          cfg.Workers,
		AutoDeliver:      cfg.AIMode == config.AIModePipeline,
	}, catalog, cam, processor, tokens, clock)

	sweeper := booth.NewSweeper(orch, idem, tokens, clock, booth.SweeperConfig{
		Interval:       cfg.SweepInterval,
		ErrorDwell:     cfg.ErrorDwell,
		IdleEvictAfter: cfg.IdleEvictAfter,
	})
	sweeper.Start()

	srv := server.NewServer(cfg, orch, idem, tokens, clock)

	done := runGracefulShutdown(srv, orch, sweeper)

	slog.Info("Server listening", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}

func setupCamera(cfg *config.Config) domain.Camera {
	if cfg.CameraAgentBaseURL == "" {
		slog.Warn("CAMERA_AGENT_BASE_URL not set, using mock camera")
		return &camera.Mock{}
	}
	return camera.NewAgentClient(cfg.CameraAgentBaseURL)
}

func setupProcessor(cfg *config.Config, catalog domain.Catalog) domain.Processor {
	switch cfg.AIMode {
	case config.AIModeGateway:
		return ai.NewGatewayClient(cfg.AIGatewayBaseURL, cfg.DeviceID, cfg.ProcessTimeout)
	case config.AIModePipeline:
		resolver := template.NewIndexResolver(cfg.DataDir, catalog)
		return ai.NewPipelineClient(cfg.AIGatewayBaseURL, resolver, cfg.ProcessTimeout)
	default:
		slog.Warn("AI_MODE is mock, results will echo the raw capture")
		return &ai.Mock{}
	}
}

func runGracefulShutdown(srv *server.Server, orch *booth.Orchestrator, sweeper *booth.Sweeper) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		sweeper.Stop()
		orch.Stop()

		close(done)
	}()

	return done
}
