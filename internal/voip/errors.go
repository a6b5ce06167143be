package voip

import "errors"

var (
	// ErrDeviceUnavailable is returned when no capture device can be opened
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrDeviceNotReady is returned when the capture cursor did not move within the ready timeout
	ErrDeviceNotReady = errors.New("capture device not ready")
	// ErrClosed is returned by a closed session
	ErrClosed = errors.New("session closed")
)
