package transport

import (
	"fmt"
	"image"

	"github.com/junsooki/AirRec/internal/capture"
)

// FrameEvent is the event bus topic frames are broadcast on.
const FrameEvent = "frame"

// Payload is the wire format of one delivered frame. Data is raw RGBA and
// encodes as base64 in JSON.
type Payload struct {
	Data []byte `json:"data"`
	// PTS is milliseconds since the recording session started.
	PTS    int64 `json:"pts"`
	Width  int   `json:"width"`
	Height int   `json:"height"`
}

// Image wraps the payload pixels as an *image.RGBA without copying.
func (p Payload) Image() (*image.RGBA, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("payload: invalid size %dx%d", p.Width, p.Height)
	}
	if want := capture.ExpectedLen(p.Width, p.Height); len(p.Data) != want {
		return nil, fmt.Errorf("payload: %dx%d frame needs %d bytes, got %d", p.Width, p.Height, want, len(p.Data))
	}
	return &image.RGBA{
		Pix:    p.Data,
		Stride: p.Width * capture.BytesPerPixel,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}, nil
}
