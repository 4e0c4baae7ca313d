// Package recorder runs recording sessions: it owns the capture and
// delivery goroutines of at most one session at a time.
package recorder

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/junsooki/AirRec/internal/capture"
	"github.com/junsooki/AirRec/internal/differ"
	"github.com/junsooki/AirRec/internal/framequeue"
	"github.com/junsooki/AirRec/internal/metrics"
	"github.com/junsooki/AirRec/internal/transport"
)

// DefaultFPS is the capture rate used when Options.FPS is zero.
const DefaultFPS = 24

// ErrAlreadyCapturing is returned by Start while a session has not finished.
var ErrAlreadyCapturing = errors.New("recorder: already capturing")

// Options configures the sessions a Recorder starts.
type Options struct {
	FPS           int
	// DiffThreshold is the number of differing bytes still treated as an
	// unchanged frame.
	DiffThreshold int
	Queue         framequeue.Options
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// DefaultOptions returns the stock capture settings.
func DefaultOptions() Options {
	return Options{
		FPS:           DefaultFPS,
		DiffThreshold: differ.DefaultThreshold,
		Queue:         framequeue.Options{Strategy: framequeue.Stream},
	}
}

// Recorder starts and stops recording sessions on the first display of a
// source, delivering frames to a single sink.
type Recorder struct {
	source capture.Source
	sink   transport.FrameSink
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	session *Session
}

// New creates a Recorder.
func New(source capture.Source, sink transport.FrameSink, opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{
		source: source,
		sink:   sink,
		opts:   opts,
		log:    opts.Logger,
	}
}

// Start opens the first display and launches a new session. It returns once
// the goroutines are spawned, not once frames flow. Display and capture
// initialization errors are returned before anything is spawned.
// A session that is still capturing or draining makes Start fail with
// ErrAlreadyCapturing.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && !r.session.Finished() {
		return ErrAlreadyCapturing
	}

	capturer, display, err := capture.Open(r.source)
	if err != nil {
		r.log.Error("start recording", "err", err)
		return err
	}

	s, err := newSession(capturer, display, r.sink, r.opts)
	if err != nil {
		_ = capturer.Close()
		r.log.Error("start recording", "err", err)
		return err
	}
	s.start()
	r.session = s

	info := s.Info()
	r.log.Info("started recording",
		"session", info.ID,
		"display", info.Display.Index,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
		"threshold", info.DiffThreshold,
	)
	return nil
}

// Stop requests the active session to halt and returns immediately. Frames
// may still be delivered after it returns.
func (r *Recorder) Stop() {
	s := r.Session()
	if s == nil {
		r.log.Debug("stop requested without a session")
		return
	}
	if s.Stop() {
		r.log.Info("stopped recording", "session", s.ID())
	}
}

// Session returns the most recent session, or nil.
func (r *Recorder) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Capturing reports whether the current session's capture goroutine runs.
func (r *Recorder) Capturing() bool {
	s := r.Session()
	return s != nil && s.Capturing()
}
