// Package permissions checks OS-level capture permissions.
package permissions

import (
	"errors"
	"sync"
)

// ErrScreenRecordingDenied means the OS refuses screen capture to this
// process.
var ErrScreenRecordingDenied = errors.New("permissions: screen recording not granted")

// Status is the state of a permission.
type Status int

const (
	Denied Status = iota
	Granted
	// Prompted means access was missing and the OS dialog has been shown.
	// A grant only takes effect after the process restarts.
	Prompted
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Prompted:
		return "prompted"
	default:
		return "denied"
	}
}

// screenCaptureAccess queries (prompt=false) or requests (prompt=true)
// screen capture access.
var screenCaptureAccess = platformScreenCaptureAccess

var (
	promptOnce sync.Once
	prompted   bool
)

// ScreenRecording reports the screen capture permission without prompting.
func ScreenRecording() Status {
	if screenCaptureAccess(false) {
		return Granted
	}
	return Denied
}

// RequestScreenRecording shows the OS prompt at most once per process and
// reports the resulting status.
func RequestScreenRecording() Status {
	if ScreenRecording() == Granted {
		return Granted
	}
	granted := false
	promptOnce.Do(func() {
		prompted = true
		granted = screenCaptureAccess(true)
	})
	switch {
	case granted:
		return Granted
	case prompted:
		return Prompted
	}
	return Denied
}

// EnsureScreenRecording returns nil when capture is allowed and
// ErrScreenRecordingDenied otherwise, prompting the first time.
func EnsureScreenRecording() error {
	if RequestScreenRecording() == Granted {
		return nil
	}
	return ErrScreenRecordingDenied
}
