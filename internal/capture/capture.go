package capture

import (
	"errors"
	"fmt"
	"image"
)

// BytesPerPixel is the size of one RGBA pixel in a Frame buffer.
const BytesPerPixel = 4

var (
	// ErrNoDisplayFound is returned by Open when the host reports no displays.
	ErrNoDisplayFound = errors.New("capture: no display found")
	// ErrCaptureInit is returned by Open when a capture handle cannot be created.
	ErrCaptureInit = errors.New("capture: init failed")
	// ErrTransientUnavailable means no frame is ready yet. Callers retry on the next poll.
	ErrTransientUnavailable = errors.New("capture: frame temporarily unavailable")
	// ErrFatalCapture means the capturer cannot produce frames anymore.
	ErrFatalCapture = errors.New("capture: fatal capture failure")
)

// Frame is one captured screen image in tightly packed RGBA layout.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// ExpectedLen returns the buffer length a frame of w x h pixels must have.
func ExpectedLen(w, h int) int {
	return w * h * BytesPerPixel
}

// Display describes one enumerated display.
type Display struct {
	Index  int
	Bounds image.Rectangle
}

func (d Display) Width() int  { return d.Bounds.Dx() }
func (d Display) Height() int { return d.Bounds.Dy() }

// Source enumerates displays and opens capture handles on them.
type Source interface {
	Displays() ([]Display, error)
	Open(d Display) (Capturer, error)
}

// Capturer polls frames from a single display.
//
// PollFrame returns either a frame, an error matching ErrTransientUnavailable,
// or an error matching ErrFatalCapture.
type Capturer interface {
	Width() int
	Height() int
	PollFrame() (Frame, error)
	Close() error
}

// Open selects the first enumerated display of src and opens a capturer on it.
func Open(src Source) (Capturer, Display, error) {
	displays, err := src.Displays()
	if err != nil {
		return nil, Display{}, fmt.Errorf("%w: enumerate displays: %v", ErrCaptureInit, err)
	}
	if len(displays) == 0 {
		return nil, Display{}, ErrNoDisplayFound
	}

	d := displays[0]
	c, err := src.Open(d)
	if err != nil {
		if errors.Is(err, ErrCaptureInit) {
			return nil, Display{}, err
		}
		return nil, Display{}, fmt.Errorf("%w: display %d: %v", ErrCaptureInit, d.Index, err)
	}
	return c, d, nil
}
