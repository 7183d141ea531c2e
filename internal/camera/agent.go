// Package camera talks to the camera agent over its local HTTP API.
package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/retry"
)

const (
	captureAttempts  = 3
	captureBackoff   = 500 * time.Millisecond
	deviceBusyOffset = 2 * time.Second
)

// AgentClient drives the out-of-process camera agent. Capture calls retry on
// device-busy; a disconnected camera is permanent until someone plugs it back
// in, so those fail immediately.
type AgentClient struct {
	baseURL string
	http    *http.Client
	probes  singleflight.Group
}

func NewAgentClient(baseURL string) *AgentClient {
	return &AgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type captureRequest struct {
	TargetPath string `json:"targetPath"`
}

type captureResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type busyError struct{ msg string }

func (e *busyError) Error() string { return e.msg }

// CaptureTo asks the agent to shoot a single frame into path. Blocks until
// the agent reports the file written.
func (c *AgentClient) CaptureTo(ctx context.Context, path string) error {
	policy := retry.Policy{
		MaxAttempts:    captureAttempts,
		InitialBackoff: captureBackoff,
		SlowBackoff:    deviceBusyOffset,
	}

	classify := func(err error) retry.Action {
		var busy *busyError
		if errors.As(err, &busy) {
			return retry.After
		}
		return retry.Stop
	}

	return retry.DoVoid(ctx, policy, classify, func() error {
		return c.captureOnce(ctx, path)
	})
}

func (c *AgentClient) captureOnce(ctx context.Context, path string) error {
	body, err := json.Marshal(captureRequest{TargetPath: path})
	if err != nil {
		return fmt.Errorf("encode capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/capture", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("camera agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusConflict {
		return &busyError{msg: fmt.Sprintf("camera device busy (status %d)", resp.StatusCode)}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read capture response: %w", err)
	}

	var cr captureResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return fmt.Errorf("decode capture response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !cr.OK {
		msg := cr.Error
		if msg == "" {
			msg = fmt.Sprintf("capture failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("camera agent: %s", msg)
	}
	return nil
}

// Status fetches agent health. Concurrent probes collapse into one request.
func (c *AgentClient) Status(ctx context.Context) (*domain.CameraStatus, error) {
	v, err, _ := c.probes.Do("status", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("camera agent unreachable: %w", err)
		}
		defer resp.Body.Close()

		var status domain.CameraStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return nil, fmt.Errorf("decode status response: %w", err)
		}
		return &status, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CameraStatus), nil
}
