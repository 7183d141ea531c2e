package booth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/logging"
	"github.com/snapkiosk/boothd/internal/metrics"
)

type jobRequest struct {
	sessionID  string
	attempt    int
	templateID string
	rawPath    string
}

// runCaptureJob is the async capture+AI chain. It runs on a worker goroutine
// and never holds the session lock across camera or backend I/O: each
// checkpoint re-acquires the lock via commit and re-validates that the
// session generation is unchanged and the intended transition is still legal.
// A failed validation means a concurrent finish/retry superseded this job; its
// result is discarded, never written over the newer state.
func (o *Orchestrator) runCaptureJob(h *handle, gen uint64, req jobRequest) {
	log := logging.WithSession(req.sessionID).With("attempt", req.attempt)

	if err := os.MkdirAll(filepath.Dir(req.rawPath), 0o755); err != nil {
		o.failJob(h, gen, "capture", log, fmt.Errorf("create raw directory: %w", err))
		return
	}

	// Phase 1: camera shot.
	captureCtx, cancel := context.WithTimeout(context.Background(), o.cfg.CaptureTimeout)
	captureStart := time.Now()
	err := o.camera.CaptureTo(captureCtx, req.rawPath)
	cancel()
	metrics.JobDurationSeconds.WithLabelValues("capture").Observe(time.Since(captureStart).Seconds())
	if err != nil {
		o.failJob(h, gen, "capture", log, err)
		return
	}

	// Checkpoint: CAPTURING -> PROCESSING.
	ok := o.commit(h, gen, func(s *domain.Session) bool {
		if !domain.CanTransition(s.State, domain.StateProcessing) {
			return false
		}
		s.RawURL = req.rawPath
		s.CaptureJobRunning = false
		s.AIJobRunning = true
		o.enterState(s, domain.StateProcessing, domain.Progress{
			Step: domain.StepAIQueued, Message: "AI queued", Percent: 30,
		})
		return true
	})
	if !ok {
		log.Info("Capture result discarded, session moved on")
		return
	}

	// Advisory progress bump before the blocking AI call.
	ok = o.commit(h, gen, func(s *domain.Session) bool {
		if s.State != domain.StateProcessing {
			return false
		}
		s.Progress = domain.Progress{Step: domain.StepAIProcessing, Message: "AI processing...", Percent: 60}
		s.UpdatedAt = o.clock.Now()
		return true
	})
	if !ok {
		return
	}

	// Phase 2: AI backend.
	processCtx, cancel := context.WithTimeout(context.Background(), o.cfg.ProcessTimeout)
	processStart := time.Now()
	result, err := o.processor.Process(processCtx, domain.ProcessRequest{
		SessionID:    req.sessionID,
		AttemptIndex: req.attempt,
		TemplateID:   req.templateID,
		RawPath:      req.rawPath,
	})
	cancel()
	metrics.JobDurationSeconds.WithLabelValues("process").Observe(time.Since(processStart).Seconds())
	if err != nil {
		o.failJob(h, gen, "process", log, err)
		return
	}

	// Checkpoint: PROCESSING -> PREVIEW, then (auto-deliver) the implicit
	// confirm chains PREVIEW -> DELIVERING under the same lock hold.
	ok = o.commit(h, gen, func(s *domain.Session) bool {
		if !domain.CanTransition(s.State, domain.StatePreview) {
			return false
		}
		s.PreviewURL = result.PreviewURL
		s.FinalURL = result.FinalURL
		s.AIJobRunning = false

		if !o.cfg.AutoDeliver || s.FinalURL == "" {
			o.enterState(s, domain.StatePreview, domain.Progress{
				Step: domain.StepFinalReady, Message: "Confirm or retake", Percent: 100,
			})
			return true
		}

		o.enterState(s, domain.StatePreview, domain.Progress{
			Step: domain.StepFinalReady, Message: "Finalizing...", Percent: 95,
		})

		rec := o.tokens.CreateToken(s.SessionID, o.cfg.DeliveryTokenTTL)
		s.DownloadToken = rec.Token
		s.DownloadURL = o.publicURL("/d/" + rec.Token)
		o.enterState(s, domain.StateDelivering, domain.Progress{
			Step: domain.StepDeliveryReady, Message: "Scan to download your photo", Percent: 100,
		})
		return true
	})
	if !ok {
		log.Info("Processing result discarded, session moved on")
		return
	}

	log.Info("Capture job completed", "preview_url", result.PreviewURL, "timing", result.Timing)
}

// commit runs fn under the session lock if the job's generation is still
// current. Returns false when the job has been superseded, either by the
// generation check or by fn rejecting the state it found.
func (o *Orchestrator) commit(h *handle, gen uint64, fn func(s *domain.Session) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.generation != gen {
		metrics.JobsSupersededTotal.Inc()
		return false
	}
	if !fn(&h.session) {
		metrics.JobsSupersededTotal.Inc()
		return false
	}
	return true
}

// failJob records the failure on the session and forces ERROR. Errors from
// the async chain are never raised to a caller; pollers observe them via Get.
func (o *Orchestrator) failJob(h *handle, gen uint64, phase string, log *slog.Logger, cause error) {
	metrics.JobFailuresTotal.WithLabelValues(phase).Inc()

	committed := o.commit(h, gen, func(s *domain.Session) bool {
		s.CaptureJobRunning = false
		s.AIJobRunning = false
		s.Error = &domain.SessionError{
			Code:    errors.CodeProcessingFailed,
			Message: "Capture/AI failed",
			Detail: map[string]string{
				"phase":  phase,
				"reason": cause.Error(),
			},
		}
		// Forced edge: ERROR is reachable from any state on job failure.
		o.enterState(s, domain.StateError, domain.Progress{
			Step: domain.StepNone, Message: "Processing failed", Percent: 0,
		})
		return true
	})

	if committed {
		log.Error("Capture job failed", "phase", phase, "error", cause)
	} else {
		log.Info("Capture job failure discarded, session moved on", "phase", phase, "error", cause)
	}
}
