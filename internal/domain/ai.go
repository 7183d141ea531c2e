package domain

import (
	"context"
	"time"
)

// ProcessRequest describes one capture attempt handed to the AI backend.
type ProcessRequest struct {
	SessionID    string
	AttemptIndex int
	TemplateID   string
	RawPath      string
}

// ProcessResult is the artifact set a successful AI run produces.
type ProcessResult struct {
	PreviewURL string
	FinalURL   string
	Timing     time.Duration
}

// Processor is the AI processing collaborator. Implementations are strategies
// chosen once at startup (direct gateway vs template-resolved pipeline); an
// unreachable backend is an error return, never a panic.
type Processor interface {
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
}
