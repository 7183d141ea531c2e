// Package config loads and validates environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// AI processing modes. Selected once at startup, never per request.
const (
	AIModeMock     = "mock"
	AIModeGateway  = "gateway"
	AIModePipeline = "pipeline"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DeviceID      string `env:"DEVICE_ID" default:"kiosk-001"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	DataDir       string `env:"DATA_DIR" default:"./data"`
	RawBaseDir    string `env:"RAW_BASE_DIR" default:"./raw"`

	// Camera agent; empty selects the built-in mock camera.
	CameraAgentBaseURL string        `env:"CAMERA_AGENT_BASE_URL"`
	CaptureTimeout     time.Duration `env:"CAPTURE_TIMEOUT" default:"20s"`

	// AI backend; base URL is required unless mode is "mock".
	AIMode           string        `env:"AI_MODE" default:"mock"`
	AIGatewayBaseURL string        `env:"AI_GATEWAY_BASE_URL"`
	ProcessTimeout   time.Duration `env:"PROCESS_TIMEOUT" default:"25s"`

	Workers          int           `env:"BOOTH_WORKERS" default:"2"`
	CountdownSeconds int           `env:"COUNTDOWN_SECONDS" default:"5"`
	MaxRetries       int           `env:"MAX_RETRIES" default:"2"`
	DeliveryTokenTTL time.Duration `env:"DELIVERY_TOKEN_TTL" default:"120s"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" default:"5m"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" default:"1s"`
	ErrorDwell     time.Duration `env:"ERROR_DWELL" default:"60s"`
	IdleEvictAfter time.Duration `env:"IDLE_EVICT_AFTER" default:"5m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.AIMode {
	case AIModeMock, AIModeGateway, AIModePipeline:
	default:
		return fmt.Errorf("AI_MODE must be one of mock, gateway, pipeline; got %q", cfg.AIMode)
	}

	if cfg.AIMode != AIModeMock && cfg.AIGatewayBaseURL == "" {
		return fmt.Errorf("AI_GATEWAY_BASE_URL is required when AI_MODE is %q", cfg.AIMode)
	}

	if cfg.Workers < 1 {
		return fmt.Errorf("BOOTH_WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.CountdownSeconds < 1 {
		return fmt.Errorf("COUNTDOWN_SECONDS must be at least 1, got %d", cfg.CountdownSeconds)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}

	return nil
}
