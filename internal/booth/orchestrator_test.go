package booth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapkiosk/boothd/internal/delivery"
	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
	"github.com/snapkiosk/boothd/internal/template"
)

// --- Mock implementations ---

type mockCamera struct {
	captureToFn func(ctx context.Context, path string) error
	statusFn    func(ctx context.Context) (*domain.CameraStatus, error)
}

func (m *mockCamera) CaptureTo(ctx context.Context, path string) error {
	if m.captureToFn != nil {
		return m.captureToFn(ctx, path)
	}
	return nil
}

func (m *mockCamera) Status(ctx context.Context) (*domain.CameraStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &domain.CameraStatus{OK: true, Connected: true}, nil
}

type mockProcessor struct {
	processFn func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error)
}

func (m *mockProcessor) Process(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
	if m.processFn != nil {
		return m.processFn(ctx, req)
	}
	return &domain.ProcessResult{
		PreviewURL: "https://cdn.example.com/p/" + req.SessionID + ".jpg",
		FinalURL:   "https://cdn.example.com/f/" + req.SessionID + ".jpg",
		Timing:     time.Millisecond,
	}, nil
}

// --- Test setup ---

type testFixture struct {
	orch   *Orchestrator
	tokens *delivery.Store
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T, cam domain.Camera, proc domain.Processor, mutate ...func(*Config)) *testFixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	tokens := delivery.NewStore(clock)

	cfg := Config{
		CountdownSeconds: 5,
		MaxRetries:       2,
		RawBaseDir:       t.TempDir(),
		PublicBaseURL:    "http://kiosk.local:8080",
		DeliveryTokenTTL: 2 * time.Minute,
		CaptureTimeout:   5 * time.Second,
		ProcessTimeout:   5 * time.Second,
		Workers:          2,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	orch := NewOrchestrator(cfg, template.NewStaticCatalog(), cam, proc, tokens, clock)
	t.Cleanup(orch.Stop)

	return &testFixture{orch: orch, tokens: tokens, clock: clock}
}

// advanceTo walks a fresh session to COUNTDOWN, ready to capture.
func (f *testFixture) advanceTo(t *testing.T, target domain.SessionState) domain.Session {
	t.Helper()

	s := f.orch.Create(CreateOptions{})
	if target == domain.StateSelecting {
		return s
	}

	s, err := f.orch.SelectTemplate(s.SessionID, "tpl_001")
	require.NoError(t, err)
	if target == domain.StateLivePreview {
		return s
	}

	s, err = f.orch.EnterCountdown(s.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateCountdown, s.State)
	return s
}

// waitForState polls Get until the session settles in one of the states.
func (f *testFixture) waitForState(t *testing.T, id string, states ...domain.SessionState) domain.Session {
	t.Helper()

	var last domain.Session
	require.Eventually(t, func() bool {
		s, err := f.orch.Get(id)
		if err != nil {
			return false
		}
		last = s
		for _, want := range states {
			if s.State == want {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond, "session never reached %v, last state %s", states, last.State)
	return last
}

// --- Tests ---

func TestCreate(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})

	s := f.orch.Create(CreateOptions{})

	assert.True(t, strings.HasPrefix(s.SessionID, "sess_"))
	assert.Len(t, s.SessionID, len("sess_")+12)
	assert.Equal(t, domain.StateSelecting, s.State)
	assert.Equal(t, 0, s.AttemptIndex)
	assert.Equal(t, 2, s.MaxRetries)
	assert.Equal(t, 2, s.RetriesLeft)
	assert.Equal(t, 5, s.CountdownSeconds)
	assert.Nil(t, s.Error)
}

func TestCreate_Overrides(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})

	retries, countdown := 0, 3
	s := f.orch.Create(CreateOptions{MaxRetries: &retries, CountdownSeconds: &countdown})

	assert.Equal(t, 0, s.MaxRetries)
	assert.Equal(t, 0, s.RetriesLeft)
	assert.Equal(t, 3, s.CountdownSeconds)
}

func TestCreate_MintsDistinctIDs(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})

	a := f.orch.Create(CreateOptions{})
	b := f.orch.Create(CreateOptions{})
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})

	_, err := f.orch.Get("sess_doesnotexist")
	assert.True(t, errors.IsNotFound(err))
}

func TestSelectTemplate(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	s, err := f.orch.SelectTemplate(s.SessionID, "tpl_002")
	require.NoError(t, err)

	assert.Equal(t, domain.StateLivePreview, s.State)
	assert.Equal(t, "tpl_002", s.TemplateID)
}

func TestSelectTemplate_UnknownTemplate(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.SelectTemplate(s.SessionID, "tpl_999")
	assert.True(t, errors.IsNotFound(err))

	// The failed selection must not move the session.
	got, err := f.orch.Get(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSelecting, got.State)
	assert.Empty(t, got.TemplateID)
}

func TestSelectTemplate_DisabledTemplate(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.SelectTemplate(s.SessionID, "tpl_005")
	assert.True(t, errors.IsNotFound(err))
}

func TestSelectTemplate_IllegalFromCountdown(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.SelectTemplate(s.SessionID, "tpl_001")
	assert.True(t, errors.IsConflict(err))
}

func TestEnterCountdown_IdempotentWhenCountingDown(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	again, err := f.orch.EnterCountdown(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCountdown, again.State)
}

func TestEnterCountdown_IllegalFromSelecting(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.EnterCountdown(s.SessionID)
	assert.True(t, errors.IsConflict(err))
}

// Scenario: the full happy path from creation to a preview waiting for the
// customer's decision.
func TestCapture_HappyPath(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	s, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCapturing, s.State)
	assert.True(t, s.CaptureJobRunning)

	final := f.waitForState(t, s.SessionID, domain.StatePreview, domain.StateError)
	require.Equal(t, domain.StatePreview, final.State)

	assert.NotEmpty(t, final.RawURL)
	assert.NotEmpty(t, final.PreviewURL)
	assert.NotEmpty(t, final.FinalURL)
	assert.False(t, final.CaptureJobRunning)
	assert.False(t, final.AIJobRunning)
	assert.Nil(t, final.Error)
}

func TestCapture_ProcessingProgressStartsAtAIQueued(t *testing.T) {
	release := make(chan struct{})
	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			<-release
			return &domain.ProcessResult{PreviewURL: "p", FinalURL: "f"}, nil
		},
	}
	f := newFixture(t, &mockCamera{}, proc)
	defer close(release)

	s := f.advanceTo(t, domain.StateCountdown)
	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)

	got := f.waitForState(t, s.SessionID, domain.StateProcessing)
	assert.Contains(t,
		[]domain.ProgressStep{domain.StepAIQueued, domain.StepAIProcessing},
		got.Progress.Step)
}

func TestCapture_AutoDeliverAdvancesToDelivering(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{}, func(c *Config) { c.AutoDeliver = true })
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)

	final := f.waitForState(t, s.SessionID, domain.StateDelivering, domain.StateError)
	require.Equal(t, domain.StateDelivering, final.State)

	assert.NotEmpty(t, final.DownloadToken)
	assert.Equal(t, "http://kiosk.local:8080/d/"+final.DownloadToken, final.DownloadURL)

	rec, ok := f.tokens.GetValid(final.DownloadToken)
	require.True(t, ok)
	assert.Equal(t, s.SessionID, rec.SessionID)
}

func TestCapture_AttemptIndexMismatch(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	wrong := 7
	_, err := f.orch.Capture(s.SessionID, &wrong)

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), "attemptIndex mismatch")

	got, _ := f.orch.Get(s.SessionID)
	assert.Equal(t, domain.StateCountdown, got.State, "mismatch must not move the session")
}

func TestCapture_MatchingAttemptIndex(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	current := 0
	got, err := f.orch.Capture(s.SessionID, &current)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCapturing, got.State)
}

func TestCapture_ShortCircuitsWhileJobInFlight(t *testing.T) {
	release := make(chan struct{})
	var shots atomic.Int32
	cam := &mockCamera{
		captureToFn: func(ctx context.Context, path string) error {
			shots.Add(1)
			<-release
			return nil
		},
	}

	f := newFixture(t, cam, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return shots.Load() == 1 }, time.Second, time.Millisecond)

	// The repeated capture returns the in-flight snapshot, no second shot.
	again, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCapturing, again.State)

	close(release)
	f.waitForState(t, s.SessionID, domain.StatePreview, domain.StateError)
	assert.Equal(t, int32(1), shots.Load())
}

func TestCapture_IllegalFromSelecting(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.Capture(s.SessionID, nil)
	assert.True(t, errors.IsConflict(err))
}

func TestCapture_CameraFailureForcesError(t *testing.T) {
	cam := &mockCamera{
		captureToFn: func(ctx context.Context, path string) error {
			return fmt.Errorf("camera not connected")
		},
	}

	f := newFixture(t, cam, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err, "the failure surfaces via polling, not the capture call")

	final := f.waitForState(t, s.SessionID, domain.StateError)
	require.NotNil(t, final.Error)
	assert.Equal(t, errors.CodeProcessingFailed, final.Error.Code)
	assert.Equal(t, "capture", final.Error.Detail["phase"])
	assert.Contains(t, final.Error.Detail["reason"], "camera not connected")
	assert.False(t, final.CaptureJobRunning)
	assert.False(t, final.AIJobRunning)
	assert.Equal(t, 2, final.RetriesLeft, "a failed attempt spends no retry")
}

func TestCapture_ProcessorFailureForcesError(t *testing.T) {
	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			return nil, errors.ExternalError("AI gateway failed", nil)
		},
	}

	f := newFixture(t, &mockCamera{}, proc)
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)

	final := f.waitForState(t, s.SessionID, domain.StateError)
	require.NotNil(t, final.Error)
	assert.Equal(t, "process", final.Error.Detail["phase"])
	assert.NotEmpty(t, final.RawURL, "the raw shot survives an AI failure")
}

func TestCapture_ProcessorReceivesAttemptContext(t *testing.T) {
	var got domain.ProcessRequest
	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			got = req
			return &domain.ProcessResult{PreviewURL: "p", FinalURL: "f"}, nil
		},
	}

	f := newFixture(t, &mockCamera{}, proc)
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	assert.Equal(t, s.SessionID, got.SessionID)
	assert.Equal(t, 0, got.AttemptIndex)
	assert.Equal(t, "tpl_001", got.TemplateID)
	assert.Contains(t, got.RawPath, s.SessionID)
	assert.Contains(t, got.RawPath, "IMG_")
}

func TestRetry(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	got, err := f.orch.Retry(s.SessionID, "customer wants another shot")
	require.NoError(t, err)

	assert.Equal(t, domain.StateCountdown, got.State)
	assert.Equal(t, 1, got.AttemptIndex)
	assert.Equal(t, 1, got.RetriesLeft)
	assert.Empty(t, got.RawURL)
	assert.Empty(t, got.PreviewURL)
	assert.Empty(t, got.FinalURL)
	assert.Nil(t, got.Error)
}

// Scenario: retries exhausted.
func TestRetry_NoRetriesLeft(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})

	retries := 0
	s := f.orch.Create(CreateOptions{MaxRetries: &retries})
	_, err := f.orch.SelectTemplate(s.SessionID, "tpl_001")
	require.NoError(t, err)
	_, err = f.orch.EnterCountdown(s.SessionID)
	require.NoError(t, err)
	_, err = f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	_, err = f.orch.Retry(s.SessionID, "one more")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), "NO_RETRIES_LEFT")

	got, _ := f.orch.Get(s.SessionID)
	assert.Equal(t, domain.StatePreview, got.State)
	assert.Equal(t, 0, got.AttemptIndex)
}

func TestRetry_IllegalFromSelecting(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.Retry(s.SessionID, "")
	assert.True(t, errors.IsConflict(err))
}

func TestConfirm(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	got, err := f.orch.Confirm(s.SessionID)
	require.NoError(t, err)

	assert.Equal(t, domain.StateDelivering, got.State)
	assert.True(t, strings.HasPrefix(got.DownloadToken, "tok_"))
	assert.Equal(t, "http://kiosk.local:8080/d/"+got.DownloadToken, got.DownloadURL)
}

func TestConfirm_IdempotentReturnsSameToken(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	first, err := f.orch.Confirm(s.SessionID)
	require.NoError(t, err)

	second, err := f.orch.Confirm(s.SessionID)
	require.NoError(t, err)

	assert.Equal(t, first.DownloadToken, second.DownloadToken)
	assert.Equal(t, 1, f.tokens.Len(), "no second token minted")
}

func TestConfirm_RequiresFinalURL(t *testing.T) {
	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			return &domain.ProcessResult{PreviewURL: "p", FinalURL: ""}, nil
		},
	}

	f := newFixture(t, &mockCamera{}, proc)
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)

	_, err = f.orch.Confirm(s.SessionID)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestConfirm_IllegalFromCountdown(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Confirm(s.SessionID)
	assert.True(t, errors.IsConflict(err))
}

func TestFinish(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StatePreview)
	_, err = f.orch.Confirm(s.SessionID)
	require.NoError(t, err)

	got, err := f.orch.Finish(s.SessionID, "customer walked away")
	require.NoError(t, err)

	assert.Equal(t, domain.StateIdle, got.State)
	assert.Empty(t, got.TemplateID)
	assert.Empty(t, got.RawURL)
	assert.Empty(t, got.PreviewURL)
	assert.Empty(t, got.FinalURL)
	assert.Empty(t, got.DownloadToken)
	assert.Empty(t, got.DownloadURL)
	assert.Nil(t, got.Error)
	assert.False(t, got.CaptureJobRunning)
	assert.False(t, got.AIJobRunning)
}

func TestFinish_IllegalFromIdle(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	s := f.orch.Create(CreateOptions{})

	_, err := f.orch.Finish(s.SessionID, "reset")
	require.NoError(t, err)

	_, err = f.orch.Finish(s.SessionID, "again")
	assert.True(t, errors.IsConflict(err))
}

// A finish racing the in-flight job must win: the job's late result is
// discarded, never written over the reset session.
func TestFinish_SupersedesInFlightJob(t *testing.T) {
	release := make(chan struct{})
	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			<-release
			return &domain.ProcessResult{PreviewURL: "late-p", FinalURL: "late-f"}, nil
		},
	}

	f := newFixture(t, &mockCamera{}, proc)
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	f.waitForState(t, s.SessionID, domain.StateProcessing)

	_, err = f.orch.Finish(s.SessionID, "operator reset")
	require.NoError(t, err)

	close(release)

	// The late AI result must never land.
	assert.Never(t, func() bool {
		got, err := f.orch.Get(s.SessionID)
		if err != nil {
			return true
		}
		return got.State != domain.StateIdle || got.PreviewURL != "" || got.FinalURL != ""
	}, 200*time.Millisecond, 10*time.Millisecond)
}

// After a reset, a fresh attempt on the same session must see only its own
// result; the orphaned first job's output never mixes in.
func TestFreshAttemptAfterResetGetsOwnResult(t *testing.T) {
	firstAttempt := make(chan struct{})
	release := make(chan struct{})
	var attempts atomic.Int32

	proc := &mockProcessor{
		processFn: func(ctx context.Context, req domain.ProcessRequest) (*domain.ProcessResult, error) {
			if attempts.Add(1) == 1 {
				close(firstAttempt)
				<-release
				return &domain.ProcessResult{PreviewURL: "stale-p", FinalURL: "stale-f"}, nil
			}
			return &domain.ProcessResult{PreviewURL: "fresh-p", FinalURL: "fresh-f"}, nil
		},
	}

	f := newFixture(t, &mockCamera{}, proc)
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	<-firstAttempt

	// The session is PROCESSING; reset it and run a whole new pass while the
	// stale job is still blocked.
	_, err = f.orch.Finish(s.SessionID, "stuck")
	require.NoError(t, err)
	_, err = f.orch.SelectTemplate(s.SessionID, "tpl_001")
	require.NoError(t, err)
	_, err = f.orch.EnterCountdown(s.SessionID)
	require.NoError(t, err)
	_, err = f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)

	got := f.waitForState(t, s.SessionID, domain.StatePreview, domain.StateError)
	require.Equal(t, domain.StatePreview, got.State)
	assert.Equal(t, "fresh-p", got.PreviewURL)

	// Unblock the stale job; its result must still be discarded.
	close(release)
	assert.Never(t, func() bool {
		cur, err := f.orch.Get(s.SessionID)
		return err != nil || cur.PreviewURL != "fresh-p"
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestCameraStatus_PassThrough(t *testing.T) {
	cam := &mockCamera{
		statusFn: func(ctx context.Context) (*domain.CameraStatus, error) {
			return &domain.CameraStatus{OK: false, Connected: false, Error: "usb unplugged"}, nil
		},
	}

	f := newFixture(t, cam, &mockProcessor{})
	status, err := f.orch.CameraStatus(context.Background())

	require.NoError(t, err)
	assert.False(t, status.OK)
	assert.Equal(t, "usb unplugged", status.Error)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t, &mockCamera{}, &mockProcessor{})
	assert.Len(t, f.orch.Templates(), 5)
}

func TestSnapshotIsolation(t *testing.T) {
	cam := &mockCamera{
		captureToFn: func(ctx context.Context, path string) error {
			return fmt.Errorf("boom")
		},
	}

	f := newFixture(t, cam, &mockProcessor{})
	s := f.advanceTo(t, domain.StateCountdown)

	_, err := f.orch.Capture(s.SessionID, nil)
	require.NoError(t, err)
	snap := f.waitForState(t, s.SessionID, domain.StateError)

	// Mutating the snapshot's error detail must not leak into the session.
	snap.Error.Detail["phase"] = "tampered"

	got, err := f.orch.Get(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "capture", got.Error.Detail["phase"])
}
