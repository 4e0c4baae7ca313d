// Package transport moves serialized frames from the recorder to a consumer.
package transport

import "errors"

var (
	// ErrClosed marks a structurally broken transport: the peer or bus is
	// gone and no later send can succeed.
	ErrClosed = errors.New("transport: closed")
	// ErrNoSubscribers is returned by an EventBus with nobody listening.
	ErrNoSubscribers = errors.New("transport: no subscribers")
	// ErrNotReady is returned while a channel is still being negotiated.
	ErrNotReady = errors.New("transport: not ready")
)

// FrameSink delivers one frame payload. Errors wrapping ErrClosed are
// structural; any other error only affects that frame.
type FrameSink interface {
	SendFrame(p Payload) error
}

// FrameReceiver receives decoded frame payloads.
type FrameReceiver interface {
	OnFrame(callback func(p Payload))
}

// ControlSender sends recording commands to the recorder.
type ControlSender interface {
	SendControl(cmd Command) error
}

// ControlReceiver receives recording commands.
type ControlReceiver interface {
	OnControl(callback func(cmd Command))
}

// IsClosed reports whether err means the transport is structurally broken.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
