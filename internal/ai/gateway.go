// Package ai implements the AI processing strategies.
//
// Two backends exist: the direct gateway (v1, POST /ai/v1/process) and the
// template-resolved pipeline (v2, POST /pipeline/v2/process). One is chosen at
// startup; the orchestrator only ever sees domain.Processor. Both wrap the
// outbound call in a circuit breaker so a dead backend fails fast instead of
// tying up the worker pool.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
)

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	})
}

// GatewayClient is the v1 strategy: the gateway receives the raw path plus the
// template id and handles everything itself.
type GatewayClient struct {
	baseURL  string
	deviceID string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewGatewayClient(baseURL, deviceID string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
		breaker:  newBreaker("ai-gateway"),
	}
}

type gatewayRequest struct {
	SessionID    string         `json:"sessionId"`
	AttemptIndex int            `json:"attemptIndex"`
	TemplateID   string         `json:"templateId"`
	RawPath      string         `json:"rawPath"`
	Options      map[string]any `json:"options"`
	Output       map[string]any `json:"output"`
}

type gatewayResponse struct {
	OK         bool           `json:"ok"`
	RequestID  string         `json:"requestId"`
	PreviewURL string         `json:"previewUrl"`
	FinalURL   string         `json:"finalUrl"`
	Meta       map[string]any `json:"meta"`
	Error      *wireError     `json:"error"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *GatewayClient) Process(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
	started := time.Now()

	body := gatewayRequest{
		SessionID:    req.SessionID,
		AttemptIndex: req.AttemptIndex,
		TemplateID:   req.TemplateID,
		RawPath:      req.RawPath,
		Options: map[string]any{
			"bgMode":       "STATIC",
			"segmentation": "AUTO",
			"featherPx":    6,
			"strength":     0.6,
		},
		Output: map[string]any{
			"previewWidth": 900,
			"finalWidth":   1800,
		},
	}

	idemKey := fmt.Sprintf("%s#%d#%s", req.SessionID, req.AttemptIndex, req.TemplateID)

	out, err := c.breaker.Execute(func() (any, error) {
		var resp gatewayResponse
		headers := map[string]string{
			"X-Device-Id":     c.deviceID,
			"Idempotency-Key": idemKey,
		}
		if err := postJSON(ctx, c.http, c.baseURL+"/ai/v1/process", headers, body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		metrics.ProcessorFailuresTotal.WithLabelValues("gateway").Inc()
		return nil, errors.ExternalError("AI gateway call failed", err)
	}

	resp := out.(*gatewayResponse)
	if !resp.OK {
		metrics.ProcessorFailuresTotal.WithLabelValues("gateway").Inc()
		code, msg := "GATEWAY_FAILED", "no message"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		return nil, errors.ExternalError(fmt.Sprintf("AI gateway failed: %s: %s", code, msg), nil)
	}

	return &domain.ProcessResult{
		PreviewURL: resp.PreviewURL,
		FinalURL:   resp.FinalURL,
		Timing:     time.Since(started),
	}, nil
}

// postJSON posts body and decodes the response into out. A non-2xx status is
// an error even when the body parses.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP_%d from %s: %s", resp.StatusCode, url, truncate(string(raw), 200))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
