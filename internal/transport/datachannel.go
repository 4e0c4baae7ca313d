package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// DataChannelTransport carries frames and control commands over WebRTC
// DataChannels. Frames are chunked since a raw frame exceeds the SCTP
// message size limit; the frames channel must be ordered and reliable.
type DataChannelTransport struct {
	mu        sync.Mutex
	framesDC  *webrtc.DataChannel
	controlDC *webrtc.DataChannel
	onFrame   func(p Payload)
	onControl func(cmd Command)

	log       *slog.Logger
	chunkSize int
	nextID    uint32
	reasm     Reassembler
	flow      *flow
	broken    bool
}

// NewDataChannelTransport wraps a frames and a control DataChannel. Either
// may be nil and set later.
func NewDataChannelTransport(framesDC, controlDC *webrtc.DataChannel, log *slog.Logger) *DataChannelTransport {
	if log == nil {
		log = slog.Default()
	}
	t := &DataChannelTransport{
		log:       log,
		chunkSize: DefaultChunkSize,
		flow:      newFlow(DefaultHighWater, DefaultStallTimeout),
	}
	if framesDC != nil {
		t.SetFramesChannel(framesDC)
	}
	if controlDC != nil {
		t.SetControlChannel(controlDC)
	}
	return t
}

func (t *DataChannelTransport) SendFrame(p Payload) error {
	t.mu.Lock()
	dc := t.framesDC
	broken := t.broken
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	if broken {
		return fmt.Errorf("frames data channel stalled: %w", ErrClosed)
	}
	if dc == nil {
		return fmt.Errorf("frames data channel: %w", ErrNotReady)
	}
	if err := channelReady(dc); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	closed := func() bool { return IsClosed(channelReady(dc)) }
	for _, chunk := range SplitMessage(id, data, t.chunkSize) {
		if err := t.flow.wait(dc.BufferedAmount, closed); err != nil {
			if errors.Is(err, errStalled) {
				t.mu.Lock()
				t.broken = true
				t.mu.Unlock()
			}
			return err
		}
		if err := dc.Send(chunk); err != nil {
			if rerr := channelReady(dc); IsClosed(rerr) {
				return fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return fmt.Errorf("send frame chunk: %w", err)
		}
	}
	return nil
}

func (t *DataChannelTransport) SendControl(cmd Command) error {
	t.mu.Lock()
	dc := t.controlDC
	t.mu.Unlock()

	if dc == nil {
		return fmt.Errorf("control data channel: %w", ErrNotReady)
	}
	if err := channelReady(dc); err != nil {
		return err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) OnFrame(cb func(p Payload)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFrame = cb
}

func (t *DataChannelTransport) OnControl(cb func(cmd Command)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onControl = cb
}

// SetFramesChannel sets or replaces the frames DataChannel (used when receiving negotiated channels).
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.broken = false
	t.mu.Unlock()
	dc.SetBufferedAmountLowThreshold(DefaultLowWater)
	dc.OnBufferedAmountLow(t.flow.signal)
	dc.OnMessage(t.handleFrameMessage)
}

// SetControlChannel sets or replaces the control DataChannel.
func (t *DataChannelTransport) SetControlChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.controlDC = dc
	t.mu.Unlock()
	dc.OnMessage(t.handleControlMessage)
}

func (t *DataChannelTransport) handleFrameMessage(msg webrtc.DataChannelMessage) {
	t.mu.Lock()
	data, complete, err := t.reasm.Add(msg.Data)
	cb := t.onFrame
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("drop frame chunk", "err", err)
		return
	}
	if !complete || cb == nil {
		return
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.log.Warn("unmarshal frame", "err", err)
		return
	}
	cb(p)
}

func (t *DataChannelTransport) handleControlMessage(msg webrtc.DataChannelMessage) {
	t.mu.Lock()
	cb := t.onControl
	t.mu.Unlock()
	if cb == nil {
		return
	}
	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		t.log.Warn("unmarshal command", "err", err)
		return
	}
	cb(cmd)
}

func channelReady(dc *webrtc.DataChannel) error {
	switch dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return nil
	case webrtc.DataChannelStateClosing, webrtc.DataChannelStateClosed:
		return fmt.Errorf("data channel %s: %w", dc.Label(), ErrClosed)
	default:
		return fmt.Errorf("data channel %s: %w", dc.Label(), ErrNotReady)
	}
}

// Send-side flow control for the frames channel. pion's Send never blocks;
// SendFrame holds each chunk until the buffered amount is back under
// DefaultHighWater, so a slow viewer backs up into the frame queue.
const (
	DefaultHighWater    = 4 << 20
	DefaultLowWater     = 1 << 20
	DefaultStallTimeout = 10 * time.Second

	flowRecheck = 100 * time.Millisecond
)

var errStalled = errors.New("frames data channel stalled")

// flow blocks senders while a channel's buffered amount is above the
// high-water mark. signal is wired to OnBufferedAmountLow.
type flow struct {
	high    uint64
	timeout time.Duration
	low     chan struct{}
}

func newFlow(high uint64, timeout time.Duration) *flow {
	return &flow{high: high, timeout: timeout, low: make(chan struct{}, 1)}
}

func (f *flow) signal() {
	select {
	case f.low <- struct{}{}:
	default:
	}
}

// wait returns once buffered() is at or below the high-water mark. A
// channel that closes while waiting yields ErrClosed, one that does not
// drain within the timeout yields errStalled, also wrapping ErrClosed.
func (f *flow) wait(buffered func() uint64, closed func() bool) error {
	if buffered() <= f.high {
		return nil
	}
	deadline := time.NewTimer(f.timeout)
	defer deadline.Stop()
	recheck := time.NewTicker(flowRecheck)
	defer recheck.Stop()

	for buffered() > f.high {
		if closed() {
			return fmt.Errorf("frames data channel: %w", ErrClosed)
		}
		select {
		case <-f.low:
		case <-recheck.C:
		case <-deadline.C:
			return fmt.Errorf("%w after %s: %w", errStalled, f.timeout, ErrClosed)
		}
	}
	return nil
}
