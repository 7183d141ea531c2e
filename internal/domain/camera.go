package domain

import "context"

// CameraStatus is the camera agent's self-reported health.
type CameraStatus struct {
	OK        bool   `json:"ok"`
	Connected bool   `json:"cameraConnected"`
	Error     string `json:"error,omitempty"`
}

// Camera is the capture collaborator. CaptureTo blocks until the shot has
// been written to path (or fails on device-busy / not-connected / write
// failure); it is only ever called from a worker goroutine, never from a
// request path.
type Camera interface {
	CaptureTo(ctx context.Context, path string) error
	Status(ctx context.Context) (*CameraStatus, error)
}
