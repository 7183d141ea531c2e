package ai

import (
	"context"
	"time"

	"github.com/snapkiosk/boothd/internal/domain"
)

// Mock simulates the AI backend for development: it waits a bit and hands the
// raw image back as both artifacts.
type Mock struct {
	// Delay defaults to 2s when zero; tests set it explicitly.
	Delay time.Duration
}

func (m *Mock) Process(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
	delay := m.Delay
	if delay == 0 {
		delay = 2 * time.Second
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &domain.ProcessResult{
		PreviewURL: "file://" + req.RawPath,
		FinalURL:   "file://" + req.RawPath,
		Timing:     delay,
	}, nil
}
