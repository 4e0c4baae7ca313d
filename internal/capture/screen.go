package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"github.com/junsooki/AirRec/internal/permissions"
)

// DefaultMaxConsecutiveFailures is how many failed grabs in a row are
// tolerated as transient before a ScreenSource capturer gives up.
const DefaultMaxConsecutiveFailures = 30

// ScreenSource captures the local displays through kbinani/screenshot.
type ScreenSource struct {
	// MaxConsecutiveFailures bounds the run of failed grabs reported as
	// ErrTransientUnavailable. Zero means DefaultMaxConsecutiveFailures.
	MaxConsecutiveFailures int
}

// NewScreenSource creates a ScreenSource.
func NewScreenSource(maxFailures int) *ScreenSource {
	return &ScreenSource{MaxConsecutiveFailures: maxFailures}
}

func (s *ScreenSource) Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		displays = append(displays, Display{Index: i, Bounds: screenshot.GetDisplayBounds(i)})
	}
	return displays, nil
}

func (s *ScreenSource) Open(d Display) (Capturer, error) {
	if err := permissions.EnsureScreenRecording(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureInit, err)
	}
	if d.Bounds.Empty() {
		return nil, fmt.Errorf("%w: display %d has empty bounds", ErrCaptureInit, d.Index)
	}
	maxFailures := s.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxConsecutiveFailures
	}
	return newScreenCapturer(d.Bounds, maxFailures, screenshot.CaptureRect), nil
}

type grabFunc func(rect image.Rectangle) (*image.RGBA, error)

// screenCapturer grabs a fixed rectangle of the desktop on every poll.
type screenCapturer struct {
	bounds      image.Rectangle
	grab        grabFunc
	maxFailures int
	failures    int
	closed      bool
}

func newScreenCapturer(bounds image.Rectangle, maxFailures int, grab grabFunc) *screenCapturer {
	return &screenCapturer{
		bounds:      bounds,
		grab:        grab,
		maxFailures: maxFailures,
	}
}

func (c *screenCapturer) Width() int  { return c.bounds.Dx() }
func (c *screenCapturer) Height() int { return c.bounds.Dy() }

func (c *screenCapturer) PollFrame() (Frame, error) {
	if c.closed {
		return Frame{}, fmt.Errorf("%w: capturer closed", ErrFatalCapture)
	}

	img, err := c.grab(c.bounds)
	if err == nil && (img == nil || len(img.Pix) == 0) {
		err = fmt.Errorf("empty image")
	}
	if err != nil {
		c.failures++
		if c.failures > c.maxFailures {
			return Frame{}, fmt.Errorf("%w: %d consecutive grabs failed: %v", ErrFatalCapture, c.failures, err)
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrTransientUnavailable, err)
	}
	c.failures = 0

	return packRGBA(img), nil
}

func (c *screenCapturer) Close() error {
	c.closed = true
	return nil
}

// packRGBA copies img into a Frame, dropping any row padding.
func packRGBA(img *image.RGBA) Frame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rowLen := w * BytesPerPixel

	if img.Stride == rowLen && len(img.Pix) == rowLen*h {
		return Frame{Data: img.Pix, Width: w, Height: h}
	}

	pix := make([]byte, rowLen*h)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(pix[y*rowLen:], src)
	}
	return Frame{Data: pix, Width: w, Height: h}
}
