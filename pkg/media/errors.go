package media

import "errors"

var (
	// ErrDeviceUnsupported means the platform has no camera capability at all.
	ErrDeviceUnsupported = errors.New("camera capture is not supported on this platform")
	// ErrPermissionDenied means the device exists but access was refused.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoMatchingDevice means no device satisfies the requested constraints.
	ErrNoMatchingDevice = errors.New("no camera matches the constraints")
	// ErrDeviceLost means a live track ended without being stopped.
	ErrDeviceLost = errors.New("camera track ended unexpectedly")

	ErrNoSource       = errors.New("no stream or playback sink to read frames from")
	ErrNotReady       = errors.New("source has not reported its dimensions yet")
	ErrNotRecording   = errors.New("no active or completed recording")
	ErrEncodingFailed = errors.New("encoder produced no data")
	ErrDisposed       = errors.New("session has been disposed")
)
