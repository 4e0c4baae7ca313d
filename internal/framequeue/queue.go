// Package framequeue hands accepted frames from the capture goroutine to the
// delivery goroutine.
//
// Two strategies share the Queue interface. Stream wakes the consumer for
// every envelope and has the lowest latency. Polled lets envelopes pile up
// and hands them over in batches on a fixed interval, decoupling capture and
// delivery cadence at the cost of up to one interval of extra latency.
// Both grow without limit unless a Capacity and an Overflow policy are set.
package framequeue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/junsooki/AirRec/internal/capture"
)

// DefaultPollInterval is the batch interval of the Polled strategy.
const DefaultPollInterval = 10 * time.Millisecond

var (
	// ErrClosed is returned by Push after the producer closed the queue.
	ErrClosed = errors.New("framequeue: queue is closed")
	// ErrDetached is returned by Push after the consumer went away.
	ErrDetached = errors.New("framequeue: consumer detached")
	// ErrFull is returned by Push under the RejectNew policy when the queue is at capacity.
	ErrFull = errors.New("framequeue: queue is full")
)

// Envelope is one accepted frame with its presentation timestamp.
type Envelope struct {
	Frame capture.Frame
	// PTS is the time elapsed since the session started.
	PTS time.Duration
	// Seq numbers envelopes in capture order, starting at 1.
	Seq uint64
}

// Strategy selects the queue implementation.
type Strategy int

const (
	Stream Strategy = iota
	Polled
)

func (s Strategy) String() string {
	switch s {
	case Stream:
		return "stream"
	case Polled:
		return "polled"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses "stream" or "polled".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "stream", "":
		return Stream, nil
	case "polled":
		return Polled, nil
	}
	return 0, fmt.Errorf("framequeue: unknown strategy %q", s)
}

// Overflow decides what Push does when a bounded queue is full.
type Overflow int

const (
	// Block makes the producer wait for room.
	Block Overflow = iota
	// DropOldest evicts the oldest pending envelope.
	DropOldest
	// RejectNew fails the push with ErrFull.
	RejectNew
)

func (o Overflow) String() string {
	switch o {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	case RejectNew:
		return "reject-new"
	default:
		return fmt.Sprintf("overflow(%d)", int(o))
	}
}

// ParseOverflow parses "block", "drop-oldest" or "reject-new".
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(s) {
	case "block", "":
		return Block, nil
	case "drop-oldest":
		return DropOldest, nil
	case "reject-new":
		return RejectNew, nil
	}
	return 0, fmt.Errorf("framequeue: unknown overflow policy %q", s)
}

// Options configures a Queue.
type Options struct {
	Strategy Strategy
	// Capacity bounds the number of pending envelopes. Zero means unbounded.
	Capacity int
	Overflow Overflow
	// PollInterval is the batch interval of the Polled strategy.
	PollInterval time.Duration
	// OnEvict, if set, is called with every envelope discarded by DropOldest.
	// It runs with the queue lock held and must not call back into the queue.
	OnEvict func(Envelope)
}

// Stats counts envelopes through a queue.
type Stats struct {
	Pushed    uint64
	Delivered uint64
	Evicted   uint64
	Rejected  uint64
	// Abandoned counts envelopes still pending when the consumer detached.
	Abandoned uint64
}

// Queue is the capture-to-delivery handoff.
type Queue interface {
	// Push appends env. It may block under the Block policy.
	Push(env Envelope) error
	// Close marks the producer as finished. The consumer drains what is
	// left and then observes closure.
	Close()
	// Next blocks until envelopes are available and returns them in push
	// order. It returns false once the queue is closed and empty.
	Next() ([]Envelope, bool)
	// Detach tells the producer nobody will consume anymore. Pending
	// envelopes are dropped and later pushes fail with ErrDetached. It
	// returns the number of envelopes dropped.
	Detach() int
	Len() int
	Stats() Stats
}

// New builds a Queue for opts.
func New(opts Options) (Queue, error) {
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("framequeue: negative capacity %d", opts.Capacity)
	}
	switch opts.Overflow {
	case Block, DropOldest, RejectNew:
	default:
		return nil, fmt.Errorf("framequeue: unknown overflow policy %d", opts.Overflow)
	}

	switch opts.Strategy {
	case Stream:
		return newStreamQueue(opts), nil
	case Polled:
		if opts.PollInterval <= 0 {
			opts.PollInterval = DefaultPollInterval
		}
		return newPolledQueue(opts), nil
	}
	return nil, fmt.Errorf("framequeue: unknown strategy %d", opts.Strategy)
}
