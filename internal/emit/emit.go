// Package emit turns queued frames into transport payloads and sends them.
package emit

import (
	"log/slog"

	"github.com/junsooki/AirRec/internal/framequeue"
	"github.com/junsooki/AirRec/internal/metrics"
	"github.com/junsooki/AirRec/internal/transport"
)

// Emitter delivers envelopes to a FrameSink.
type Emitter struct {
	sink    transport.FrameSink
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Emitter. log and m may be nil.
func New(sink transport.FrameSink, log *slog.Logger, m *metrics.Metrics) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{sink: sink, log: log, metrics: m}
}

// NewPayload builds the wire payload for env. The frame buffer is moved, not
// copied.
func NewPayload(env framequeue.Envelope) transport.Payload {
	return transport.Payload{
		Data:   env.Frame.Data,
		PTS:    env.PTS.Milliseconds(),
		Width:  env.Frame.Width,
		Height: env.Frame.Height,
	}
}

// Emit sends one envelope.
func (e *Emitter) Emit(env framequeue.Envelope) error {
	err := e.sink.SendFrame(NewPayload(env))
	e.metrics.Sent(err)
	return err
}

// Run delivers envelopes from q until q is closed and drained, or until the
// transport breaks. Failed sends on a healthy transport are logged and
// skipped. On a broken transport the queue is detached and the error
// returned.
func (e *Emitter) Run(q framequeue.Queue) error {
	for {
		batch, ok := q.Next()
		if !ok {
			return nil
		}
		for i, env := range batch {
			err := e.Emit(env)
			if err == nil {
				e.log.Debug("emitted frame", "seq", env.Seq, "pts", env.PTS.Milliseconds())
				continue
			}
			if transport.IsClosed(err) {
				e.log.Error("transport closed, stopping delivery", "seq", env.Seq, "err", err)
				dropped := len(batch[i+1:]) + q.Detach()
				e.metrics.DroppedN("detached", dropped)
				if dropped > 0 {
					e.log.Warn("dropped undelivered frames", "count", dropped)
				}
				return err
			}
			e.log.Warn("emit frame failed", "seq", env.Seq, "err", err)
		}
		e.metrics.QueueDepth(q.Len())
	}
}
