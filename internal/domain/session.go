package domain

import "time"

// SessionState is the lifecycle state of a booth session.
type SessionState string

const (
	StateIdle        SessionState = "IDLE"
	StateSelecting   SessionState = "SELECTING"
	StateLivePreview SessionState = "LIVE_PREVIEW"
	StateCountdown   SessionState = "COUNTDOWN"
	StateCapturing   SessionState = "CAPTURING"
	StateProcessing  SessionState = "PROCESSING"
	StatePreview     SessionState = "PREVIEW"
	StateDelivering  SessionState = "DELIVERING"
	StateDone        SessionState = "DONE"
	StateError       SessionState = "ERROR"
)

// ProgressStep labels the coarse phase a session's background work is in.
type ProgressStep string

const (
	StepNone          ProgressStep = "NONE"
	StepCaptureDone   ProgressStep = "CAPTURE_DONE"
	StepAIQueued      ProgressStep = "AI_QUEUED"
	StepAIProcessing  ProgressStep = "AI_PROCESSING"
	StepPreviewReady  ProgressStep = "PREVIEW_READY"
	StepFinalReady    ProgressStep = "FINAL_READY"
	StepDeliveryReady ProgressStep = "DELIVERY_READY"
)

// Progress is advisory UI feedback. Nothing in the lifecycle is allowed to
// depend on it; clients poll State for decisions and Progress for display.
type Progress struct {
	Step    ProgressStep `json:"step"`
	Message string       `json:"message"`
	Percent int          `json:"percent"`
}

// SessionError carries the structured failure recorded on a session.
// Non-nil exactly while the session is in ERROR.
type SessionError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

// Session is one end-to-end customer interaction, from template choice to
// delivery. Orchestrator operations return value copies; the mutable instance
// lives behind the orchestrator's per-session lock and is never shared.
type Session struct {
	SessionID        string       `json:"sessionId"`
	State            SessionState `json:"state"`
	TemplateID       string       `json:"templateId,omitempty"`
	AttemptIndex     int          `json:"attemptIndex"`
	MaxRetries       int          `json:"maxRetries"`
	RetriesLeft      int          `json:"retriesLeft"`
	CountdownSeconds int          `json:"countdownSeconds"`
	Progress         Progress     `json:"progress"`

	RawURL        string `json:"rawUrl,omitempty"`
	PreviewURL    string `json:"previewUrl,omitempty"`
	FinalURL      string `json:"finalUrl,omitempty"`
	DownloadURL   string `json:"downloadUrl,omitempty"`
	DownloadToken string `json:"downloadToken,omitempty"`

	CaptureJobRunning bool `json:"captureJobRunning"`
	AIJobRunning      bool `json:"aiJobRunning"`

	Error *SessionError `json:"error,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	StateEnteredAt time.Time `json:"stateEnteredAt"`
}
