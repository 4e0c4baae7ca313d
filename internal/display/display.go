// Package display shows frames in a window and turns key presses into
// recording commands.
package display

import (
	"fmt"
	"math"
	"time"

	"github.com/junsooki/AirRec/internal/transport"
)

// CommandFunc is called when the user asks to start or stop recording.
type CommandFunc func(cmd transport.CommandType)

// Status is the overlay text state.
type Status struct {
	Recording bool
	Frames    uint64
	LastPTS   int64
	Width     int
	Height    int
}

func (s Status) String() string {
	state := "idle"
	if s.Recording {
		state = "recording"
	}
	if s.Frames == 0 {
		return fmt.Sprintf("%s | no frames yet | R: record  S: stop", state)
	}
	pts := time.Duration(s.LastPTS) * time.Millisecond
	return fmt.Sprintf("%s | %dx%d | frames %d | pts %s | R: record  S: stop",
		state, s.Width, s.Height, s.Frames, pts)
}

// aspectFitTransform returns scale and offsets to fit a frame into the view
// with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	if frameW <= 0 || frameH <= 0 {
		return 1, 0, 0
	}
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
