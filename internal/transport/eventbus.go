package transport

import (
	"sync/atomic"

	"github.com/olebedev/emitter"
)

// EventBus broadcasts frames to in-process subscribers on the FrameEvent
// topic. Delivery is synchronous so subscribers see frames in send order;
// a subscriber that stops reading stalls the sender.
type EventBus struct {
	em     *emitter.Emitter
	closed atomic.Bool
}

// NewEventBus creates a bus whose subscriber channels buffer capacity events.
func NewEventBus(capacity uint) *EventBus {
	em := &emitter.Emitter{Cap: capacity}
	em.Use("*", emitter.Sync)
	return &EventBus{em: em}
}

// Subscribe returns a channel receiving every frame sent after the call.
func (b *EventBus) Subscribe() <-chan emitter.Event {
	return b.em.On(FrameEvent)
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *EventBus) Unsubscribe(ch <-chan emitter.Event) {
	b.em.Off(FrameEvent, ch)
}

func (b *EventBus) SendFrame(p Payload) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(b.em.Listeners(FrameEvent)) == 0 {
		return ErrNoSubscribers
	}
	<-b.em.Emit(FrameEvent, p)
	return nil
}

// Close drops every subscriber. Later sends fail with ErrClosed.
func (b *EventBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.em.Off("*")
	return nil
}

// PayloadFromEvent extracts the frame carried by a bus event.
func PayloadFromEvent(e emitter.Event) (Payload, bool) {
	if len(e.Args) == 0 {
		return Payload{}, false
	}
	p, ok := e.Args[0].(Payload)
	return p, ok
}
