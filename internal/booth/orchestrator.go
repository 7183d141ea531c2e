package booth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/snapkiosk/boothd/internal/delivery"
	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/metrics"
	"github.com/snapkiosk/boothd/internal/template"
)

const jobQueueDepth = 16

// Config carries the orchestrator's tunables.
type Config struct {
	CountdownSeconds int
	MaxRetries       int
	RawBaseDir       string
	PublicBaseURL    string
	DeliveryTokenTTL time.Duration
	CaptureTimeout   time.Duration
	ProcessTimeout   time.Duration
	Workers          int

	// AutoDeliver makes a successful processing run advance through an
	// implicit confirm (pipeline mode): the delivery token is minted and the
	// session lands in DELIVERING without a client round-trip.
	AutoDeliver bool
}

// handle is the guarded owner of one session. All field access goes through
// mu; generation is bumped on every Finish/Retry so an in-flight async job can
// detect that it has been superseded.
type handle struct {
	mu         sync.Mutex
	session    domain.Session
	generation uint64
}

// Orchestrator exposes the session lifecycle operations. Fast steps mutate
// synchronously under the per-session lock; capture/AI work goes to the
// worker pool and the calling request returns with the post-transition
// snapshot immediately.
type Orchestrator struct {
	cfg       Config
	catalog   domain.Catalog
	camera    domain.Camera
	processor domain.Processor
	tokens    *delivery.Store
	clock     clockwork.Clock

	sessions sync.Map // session id -> *handle

	jobs     chan func()
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewOrchestrator(cfg Config, catalog domain.Catalog, camera domain.Camera, processor domain.Processor, tokens *delivery.Store, clock clockwork.Clock) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}

	o := &Orchestrator{
		cfg:       cfg,
		catalog:   catalog,
		camera:    camera,
		processor: processor,
		tokens:    tokens,
		clock:     clock,
		jobs:      make(chan func(), jobQueueDepth),
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}

	return o
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case job := <-o.jobs:
			job()
		case <-o.stopCh:
			return
		}
	}
}

func (o *Orchestrator) dispatch(job func()) {
	select {
	case o.jobs <- job:
	case <-o.stopCh:
	}
}

// Stop drains the worker pool. In-flight jobs finish; queued jobs may be
// dropped.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
	o.wg.Wait()
}

// CreateOptions overrides per-session defaults at creation time.
type CreateOptions struct {
	MaxRetries       *int
	CountdownSeconds *int
}

// Create mints a new session in SELECTING.
func (o *Orchestrator) Create(opts CreateOptions) domain.Session {
	id := "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	now := o.clock.Now()

	maxRetries := o.cfg.MaxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		maxRetries = *opts.MaxRetries
	}
	countdown := o.cfg.CountdownSeconds
	if opts.CountdownSeconds != nil && *opts.CountdownSeconds > 0 {
		countdown = *opts.CountdownSeconds
	}

	h := &handle{
		session: domain.Session{
			SessionID:        id,
			State:            domain.StateIdle,
			AttemptIndex:     0,
			MaxRetries:       maxRetries,
			RetriesLeft:      maxRetries,
			CountdownSeconds: countdown,
			CreatedAt:        now,
			UpdatedAt:        now,
			StateEnteredAt:   now,
		},
	}

	h.mu.Lock()
	o.enterState(&h.session, domain.StateSelecting, domain.Progress{
		Step: domain.StepNone, Message: "Waiting for template selection", Percent: 0,
	})
	snapshot := snapshotLocked(h)
	h.mu.Unlock()

	o.sessions.Store(id, h)
	metrics.SessionsActive.Inc()

	slog.Info("Session created", "session_id", id, "max_retries", maxRetries)
	return snapshot
}

// Get returns the current snapshot of a session.
func (o *Orchestrator) Get(id string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshotLocked(h), nil
}

// SelectTemplate validates the template against the catalog and moves the
// session into LIVE_PREVIEW.
func (o *Orchestrator) SelectTemplate(id, templateID string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	if !template.IsEnabled(o.catalog, templateID) {
		return domain.Session{}, errors.NotFoundError(fmt.Sprintf("template not found or disabled: %s", templateID))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.session
	if !domain.CanTransition(s.State, domain.StateLivePreview) {
		return domain.Session{}, o.conflict("selectTemplate", s.State)
	}

	s.TemplateID = templateID
	s.Error = nil
	o.enterState(s, domain.StateLivePreview, domain.Progress{
		Step: domain.StepNone, Message: "Frame your shot", Percent: 0,
	})
	return snapshotLocked(h), nil
}

// EnterCountdown starts the countdown. Idempotent when already counting down.
func (o *Orchestrator) EnterCountdown(id string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.session
	if s.State == domain.StateCountdown {
		return snapshotLocked(h), nil
	}
	if !domain.CanTransition(s.State, domain.StateCountdown) {
		return domain.Session{}, o.conflict("enterCountdown", s.State)
	}

	o.enterState(s, domain.StateCountdown, domain.Progress{
		Step: domain.StepNone, Message: "Get ready", Percent: 0,
	})
	return snapshotLocked(h), nil
}

// Capture transitions to CAPTURING and dispatches the capture+AI job. A
// session already mid-attempt (CAPTURING/PROCESSING/PREVIEW) short-circuits
// without launching a second job; a caller-supplied attemptIndex that does
// not match the session's is rejected as a conflict.
func (o *Orchestrator) Capture(id string, attemptIndex *int) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()

	s := &h.session
	if attemptIndex != nil && *attemptIndex != s.AttemptIndex {
		cur, req := s.AttemptIndex, *attemptIndex
		h.mu.Unlock()
		metrics.SessionConflictsTotal.WithLabelValues("capture").Inc()
		return domain.Session{}, errors.ConflictError(errors.CodeInvalidState,
			fmt.Sprintf("attemptIndex mismatch: current=%d, request=%d", cur, req))
	}

	switch s.State {
	case domain.StateCapturing, domain.StateProcessing, domain.StatePreview:
		snapshot := snapshotLocked(h)
		h.mu.Unlock()
		return snapshot, nil
	}

	if !domain.CanTransition(s.State, domain.StateCapturing) {
		state := s.State
		h.mu.Unlock()
		return domain.Session{}, o.conflict("capture", state)
	}

	if s.CaptureJobRunning {
		snapshot := snapshotLocked(h)
		h.mu.Unlock()
		return snapshot, nil
	}

	s.CaptureJobRunning = true
	s.Error = nil
	o.enterState(s, domain.StateCapturing, domain.Progress{
		Step: domain.StepNone, Message: "Taking photo...", Percent: 5,
	})

	job := jobRequest{
		sessionID:  s.SessionID,
		attempt:    s.AttemptIndex,
		templateID: s.TemplateID,
		rawPath: filepath.Join(o.cfg.RawBaseDir, s.SessionID,
			fmt.Sprintf("IMG_%d.jpg", o.clock.Now().UnixMilli())),
	}
	gen := h.generation
	snapshot := snapshotLocked(h)
	h.mu.Unlock()

	o.dispatch(func() { o.runCaptureJob(h, gen, job) })

	return snapshot, nil
}

// Retry spends one retry: attemptIndex up, retriesLeft down, artifacts and
// error cleared, back to COUNTDOWN. The generation bump orphans any async job
// still running for the previous attempt.
func (o *Orchestrator) Retry(id, reason string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.session
	if !domain.CanTransition(s.State, domain.StateCountdown) {
		return domain.Session{}, o.conflict("retry", s.State)
	}
	if s.RetriesLeft <= 0 {
		metrics.SessionConflictsTotal.WithLabelValues("retry").Inc()
		return domain.Session{}, errors.ConflictError(errors.CodeNoRetriesLeft, "no retries left")
	}

	h.generation++
	s.RetriesLeft--
	s.AttemptIndex++
	clearAttempt(s)

	o.enterState(s, domain.StateCountdown, domain.Progress{
		Step: domain.StepNone, Message: "Get ready to retake", Percent: 0,
	})

	slog.Info("Session retry", "session_id", id, "attempt", s.AttemptIndex, "retries_left", s.RetriesLeft, "reason", reason)
	return snapshotLocked(h), nil
}

// Confirm mints the delivery token and moves to DELIVERING. Idempotent once
// delivering or done: the same token is returned, no second one is minted.
func (o *Orchestrator) Confirm(id string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.session
	if s.State == domain.StateDelivering || s.State == domain.StateDone {
		return snapshotLocked(h), nil
	}
	if !domain.CanTransition(s.State, domain.StateDelivering) {
		return domain.Session{}, o.conflict("confirm", s.State)
	}
	if s.FinalURL == "" {
		metrics.SessionConflictsTotal.WithLabelValues("confirm").Inc()
		return domain.Session{}, errors.ConflictError(errors.CodeInvalidState, "final image not ready")
	}

	rec := o.tokens.CreateToken(s.SessionID, o.cfg.DeliveryTokenTTL)
	s.DownloadToken = rec.Token
	s.DownloadURL = o.publicURL("/d/" + rec.Token)

	o.enterState(s, domain.StateDelivering, domain.Progress{
		Step: domain.StepDeliveryReady, Message: "Scan to download your photo", Percent: 100,
	})

	slog.Info("Session confirmed", "session_id", id, "download_url", s.DownloadURL)
	return snapshotLocked(h), nil
}

// Finish is the universal reset: clears all per-attempt fields and returns
// the session to IDLE. Also the sweeper's recovery action.
func (o *Orchestrator) Finish(id, reason string) (domain.Session, error) {
	h, err := o.handleFor(id)
	if err != nil {
		return domain.Session{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.session
	if !domain.CanTransition(s.State, domain.StateIdle) {
		return domain.Session{}, o.conflict("finish", s.State)
	}

	h.generation++
	s.TemplateID = ""
	clearAttempt(s)

	o.enterState(s, domain.StateIdle, domain.Progress{
		Step: domain.StepNone, Message: "Back to start", Percent: 0,
	})

	slog.Info("Session finished", "session_id", id, "reason", reason)
	return snapshotLocked(h), nil
}

// CameraStatus is a pre-flight pass-through to the camera collaborator.
func (o *Orchestrator) CameraStatus(ctx context.Context) (*domain.CameraStatus, error) {
	return o.camera.Status(ctx)
}

// Templates lists the catalog.
func (o *Orchestrator) Templates() []domain.TemplateSummary {
	return o.catalog.List()
}

// --- internals ---

func (o *Orchestrator) handleFor(id string) (*handle, error) {
	v, ok := o.sessions.Load(id)
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("session not found: %s", id))
	}
	return v.(*handle), nil
}

func (o *Orchestrator) conflict(operation string, state domain.SessionState) error {
	metrics.SessionConflictsTotal.WithLabelValues(operation).Inc()
	return errors.ConflictError(errors.CodeInvalidState,
		fmt.Sprintf("action not allowed in current state: %s", state))
}

// enterState commits a transition: state, progress, and both timestamps.
// stateEnteredAt is the sweeper's dwell reference. Caller holds the lock.
func (o *Orchestrator) enterState(s *domain.Session, to domain.SessionState, p domain.Progress) {
	metrics.SessionTransitionsTotal.WithLabelValues(string(s.State), string(to)).Inc()
	s.State = to
	s.Progress = p
	now := o.clock.Now()
	s.UpdatedAt = now
	s.StateEnteredAt = now
}

func (o *Orchestrator) publicURL(path string) string {
	return strings.TrimRight(o.cfg.PublicBaseURL, "/") + path
}

// clearAttempt wipes everything tied to the current attempt. Caller holds the
// lock.
func clearAttempt(s *domain.Session) {
	s.RawURL = ""
	s.PreviewURL = ""
	s.FinalURL = ""
	s.DownloadToken = ""
	s.DownloadURL = ""
	s.Error = nil
	s.CaptureJobRunning = false
	s.AIJobRunning = false
}

// snapshotLocked deep-copies the session. Caller holds the lock.
func snapshotLocked(h *handle) domain.Session {
	s := h.session
	if s.Error != nil {
		errCopy := *s.Error
		if errCopy.Detail != nil {
			detail := make(map[string]string, len(errCopy.Detail))
			for k, v := range errCopy.Detail {
				detail[k] = v
			}
			errCopy.Detail = detail
		}
		s.Error = &errCopy
	}
	return s
}

func (o *Orchestrator) evict(id string, _ *handle) {
	o.sessions.Delete(id)
	metrics.SessionsActive.Dec()
	metrics.SweeperEvictionsTotal.Inc()
	slog.Debug("Idle session evicted", "session_id", id)
}
