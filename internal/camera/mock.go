package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snapkiosk/boothd/internal/domain"
)

// Mock simulates the camera for development without hardware. It writes a
// placeholder file after a short shutter delay.
type Mock struct {
	// ShutterDelay defaults to 300ms when zero; tests set it explicitly.
	ShutterDelay time.Duration
}

func (m *Mock) CaptureTo(ctx context.Context, path string) error {
	delay := m.ShutterDelay
	if delay == 0 {
		delay = 300 * time.Millisecond
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raw directory: %w", err)
	}
	if err := os.WriteFile(path, []byte("mock-jpeg"), 0o644); err != nil {
		return fmt.Errorf("write mock capture: %w", err)
	}
	return nil
}

func (m *Mock) Status(context.Context) (*domain.CameraStatus, error) {
	return &domain.CameraStatus{OK: true, Connected: true}, nil
}
