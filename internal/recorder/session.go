package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/AirRec/internal/capture"
	"github.com/junsooki/AirRec/internal/differ"
	"github.com/junsooki/AirRec/internal/emit"
	"github.com/junsooki/AirRec/internal/framequeue"
	"github.com/junsooki/AirRec/internal/metrics"
	"github.com/junsooki/AirRec/internal/pacer"
	"github.com/junsooki/AirRec/internal/transport"
)

// Info describes a session. It does not change after the session starts.
type Info struct {
	ID            string
	Display       capture.Display
	Width         int
	Height        int
	FPS           int
	DiffThreshold int
	Started       time.Time
}

// Session is one recording lifetime: a capture goroutine feeding a queue
// and a delivery goroutine draining it.
type Session struct {
	info      Info
	stop      StopController
	capturing atomic.Bool

	capturer capture.Capturer
	differ   *differ.Differ
	pacer    *pacer.Pacer
	queue    framequeue.Queue
	emitter  *emit.Emitter
	log      *slog.Logger
	metrics  *metrics.Metrics

	seq   uint64 // owned by the capture goroutine
	group errgroup.Group
	done  chan struct{}
	err   error
}

func newSession(c capture.Capturer, d capture.Display, sink transport.FrameSink, opts Options) (*Session, error) {
	p, err := pacer.New(opts.FPS)
	if err != nil {
		return nil, err
	}

	m := opts.Metrics
	qopts := opts.Queue
	onEvict := qopts.OnEvict
	qopts.OnEvict = func(env framequeue.Envelope) {
		m.Dropped("evicted")
		if onEvict != nil {
			onEvict(env)
		}
	}
	q, err := framequeue.New(qopts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := opts.Logger.With("session", id)
	return &Session{
		info: Info{
			ID:            id,
			Display:       d,
			Width:         c.Width(),
			Height:        c.Height(),
			FPS:           opts.FPS,
			DiffThreshold: opts.DiffThreshold,
		},
		capturer: c,
		differ:   differ.New(opts.DiffThreshold),
		pacer:    p,
		queue:    q,
		emitter:  emit.New(sink, log, m),
		log:      log,
		metrics:  m,
		done:     make(chan struct{}),
	}, nil
}

// start spawns the capture and delivery goroutines and returns at once.
func (s *Session) start() {
	s.info.Started = s.pacer.Now()
	s.capturing.Store(true)
	s.metrics.SessionStarted()

	s.group.Go(s.captureLoop)
	s.group.Go(s.deliverLoop)
	go func() {
		s.err = s.group.Wait()
		s.metrics.SessionEnded()
		s.log.Info("session finished", "err", s.err)
		close(s.done)
	}()
}

func (s *Session) ID() string { return s.info.ID }

func (s *Session) Info() Info { return s.info }

// Stop asks the capture goroutine to exit. It does not wait, and frames
// already queued are still delivered. It reports whether this call
// requested the stop.
func (s *Session) Stop() bool {
	return s.stop.Stop()
}

// Stopping reports whether a stop was requested.
func (s *Session) Stopping() bool {
	return s.stop.Stopped()
}

// Capturing reports whether the capture goroutine is still running.
func (s *Session) Capturing() bool {
	return s.capturing.Load()
}

// Done is closed once both capture and delivery have exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Finished reports whether Done is closed.
func (s *Session) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the session finished and returns the first error from
// capture or delivery.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

func (s *Session) captureLoop() error {
	defer func() {
		s.capturing.Store(false)
		s.queue.Close()
		if err := s.capturer.Close(); err != nil {
			s.log.Warn("close capturer", "err", err)
		}
	}()

	for !s.stop.Stopped() {
		start := s.pacer.Now()
		pts := start.Sub(s.info.Started)

		frame, err := s.capturer.PollFrame()
		switch {
		case err == nil:
			s.metrics.Poll("frame")
			s.offer(frame, pts)
		case errors.Is(err, capture.ErrTransientUnavailable):
			s.metrics.Poll("transient")
		default:
			s.metrics.Poll("fatal")
			s.log.Error("capture failed", "err", err)
			if !errors.Is(err, capture.ErrFatalCapture) {
				err = fmt.Errorf("%w: %w", capture.ErrFatalCapture, err)
			}
			return err
		}

		s.metrics.Iteration(s.pacer.Now().Sub(start))
		s.pacer.Wait(start)
	}

	s.log.Info("capture stopped", "frames", s.seq)
	return nil
}

// offer runs the differ on frame and queues it when accepted.
func (s *Session) offer(frame capture.Frame, pts time.Duration) {
	accepted := s.differ.Accept(frame.Data)
	s.metrics.Diffed(accepted)
	if !accepted {
		return
	}

	s.seq++
	env := framequeue.Envelope{Frame: frame, PTS: pts, Seq: s.seq}
	err := s.queue.Push(env)
	switch {
	case err == nil:
		s.log.Debug("captured frame", "seq", env.Seq, "pts", pts.Milliseconds())
	case errors.Is(err, framequeue.ErrFull):
		s.metrics.Dropped("rejected")
		s.log.Debug("queue full, frame rejected", "seq", env.Seq)
	case errors.Is(err, framequeue.ErrDetached):
		s.metrics.Dropped("detached")
	default:
		s.log.Warn("queue frame", "seq", env.Seq, "err", err)
	}
	s.metrics.QueueDepth(s.queue.Len())
}

func (s *Session) deliverLoop() error {
	if err := s.emitter.Run(s.queue); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}
