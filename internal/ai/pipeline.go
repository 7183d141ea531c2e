package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/metrics"
)

// PipelineClient is the v2 strategy: the template is resolved to its installed
// package metadata locally and the pipeline downloads it itself.
type PipelineClient struct {
	baseURL  string
	resolver domain.Resolver
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewPipelineClient(baseURL string, resolver domain.Resolver, timeout time.Duration) *PipelineClient {
	return &PipelineClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		resolver: resolver,
		http:     &http.Client{Timeout: timeout},
		breaker:  newBreaker("ai-pipeline"),
	}
}

type pipelineRequest struct {
	TemplateCode   string `json:"templateCode"`
	VersionSemver  string `json:"versionSemver"`
	DownloadURL    string `json:"downloadUrl"`
	ChecksumSHA256 string `json:"checksumSha256"`
	RawPath        string `json:"rawPath"`
}

type pipelineResponse struct {
	OK      bool       `json:"ok"`
	JobID   string     `json:"jobId"`
	Outputs *outputs   `json:"outputs"`
	Timing  *timing    `json:"timing"`
	Error   *wireError `json:"error"`
}

type outputs struct {
	PreviewURL string `json:"previewUrl"`
	FinalURL   string `json:"finalUrl"`
}

type timing struct {
	TotalMs int64 `json:"totalMs"`
}

func (c *PipelineClient) Process(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
	started := time.Now()

	ref, err := c.resolver.ResolveForPipeline(req.TemplateID)
	if err != nil {
		metrics.ProcessorFailuresTotal.WithLabelValues("pipeline").Inc()
		return nil, err
	}

	body := pipelineRequest{
		TemplateCode:   ref.TemplateCode,
		VersionSemver:  ref.VersionSemver,
		DownloadURL:    ref.DownloadURL,
		ChecksumSHA256: ref.ChecksumSHA256,
		RawPath:        req.RawPath,
	}

	out, err := c.breaker.Execute(func() (any, error) {
		var resp pipelineResponse
		if err := postJSON(ctx, c.http, c.baseURL+"/pipeline/v2/process", nil, body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		metrics.ProcessorFailuresTotal.WithLabelValues("pipeline").Inc()
		return nil, errors.ExternalError("pipeline v2 call failed", err)
	}

	resp := out.(*pipelineResponse)
	if !resp.OK || resp.Outputs == nil {
		metrics.ProcessorFailuresTotal.WithLabelValues("pipeline").Inc()
		code, msg := "PIPELINE_ERROR", "pipeline v2 failed"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		return nil, errors.ExternalError(fmt.Sprintf("pipeline v2 failed: %s: %s", code, msg), nil)
	}

	elapsed := time.Since(started)
	if resp.Timing != nil && resp.Timing.TotalMs > 0 {
		elapsed = time.Duration(resp.Timing.TotalMs) * time.Millisecond
	}

	return &domain.ProcessResult{
		PreviewURL: c.absolutize(resp.Outputs.PreviewURL),
		FinalURL:   c.absolutize(resp.Outputs.FinalURL),
		Timing:     elapsed,
	}, nil
}

// absolutize rewrites relative artifact paths against the pipeline base URL.
func (c *PipelineClient) absolutize(url string) string {
	if url == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return c.baseURL + url
}
