package peer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/AirRec/internal/transport"
)

// Host is the recorder side of one viewer connection.
type Host struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	viewerID  string
	log       *slog.Logger

	cands     candidates
	done      chan struct{}
	closeOnce sync.Once
	ready     chan struct{}

	mu       sync.Mutex
	accepted map[string]bool // labels bound to the transport
	opened   map[string]bool
}

// NewHost creates the host peer for viewerID.
func NewHost(sig Signaler, viewerID string, opts Options) (*Host, error) {
	log := opts.logger().With("viewer", viewerID)
	h := &Host{
		sig:       sig,
		viewerID:  viewerID,
		log:       log,
		transport: transport.NewDataChannelTransport(nil, nil, log),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		accepted:  make(map[string]bool),
		opened:    make(map[string]bool),
	}
	opts.Log = log

	pc, err := newPeerConnection(opts, sig, viewerID, h.markDone)
	if err != nil {
		return nil, err
	}
	h.pc = pc
	h.cands.pc = pc

	pc.OnDataChannel(h.acceptChannel)
	return h, nil
}

// acceptChannel binds the first "frames" and "control" channel the viewer
// opens. Any other channel is closed.
func (h *Host) acceptChannel(dc *webrtc.DataChannel) {
	label := dc.Label()
	if label != FramesLabel && label != ControlLabel {
		h.log.Warn("closing unexpected data channel", "label", label)
		_ = dc.Close()
		return
	}

	h.mu.Lock()
	dup := h.accepted[label]
	h.accepted[label] = true
	h.mu.Unlock()
	if dup {
		h.log.Warn("closing duplicate data channel", "label", label)
		_ = dc.Close()
		return
	}

	if label == FramesLabel {
		h.transport.SetFramesChannel(dc)
	} else {
		h.transport.SetControlChannel(dc)
	}
	dc.OnOpen(func() {
		h.log.Info("data channel open", "label", label)
		h.channelOpened(label)
	})
	dc.OnClose(func() {
		h.log.Info("data channel closed", "label", label)
		h.markDone()
	})
}

func (h *Host) channelOpened(label string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opened[label] {
		return
	}
	h.opened[label] = true
	if len(h.opened) == 2 {
		close(h.ready)
	}
}

// ViewerID returns the id of the connected viewer.
func (h *Host) ViewerID() string { return h.viewerID }

// Transport returns the frames and control transport.
func (h *Host) Transport() *transport.DataChannelTransport { return h.transport }

// Ready is closed once both data channels are open.
func (h *Host) Ready() <-chan struct{} { return h.ready }

// Done is closed when the connection failed or was closed.
func (h *Host) Done() <-chan struct{} { return h.done }

// HandleOffer answers the viewer's offer.
func (h *Host) HandleOffer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("peer: decode offer: %w", err)
	}
	if err := h.cands.setRemote(offer); err != nil {
		return fmt.Errorf("peer: set remote description: %w", err)
	}
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("peer: create answer: %w", err)
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("peer: set local description: %w", err)
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return h.sig.SendAnswer(h.viewerID, data)
}

func (h *Host) HandleICECandidate(payload json.RawMessage) error {
	return h.cands.add(payload)
}

// Close shuts the peer connection down.
func (h *Host) Close() error {
	h.markDone()
	return h.pc.Close()
}

func (h *Host) markDone() {
	h.closeOnce.Do(func() { close(h.done) })
}
