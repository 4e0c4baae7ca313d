package peer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/AirRec/internal/transport"
)

// Controller is the viewer side of a recorder connection.
type Controller struct {
	pc         *webrtc.PeerConnection
	sig        Signaler
	transport  *transport.DataChannelTransport
	recorderID string
	log        *slog.Logger

	cands     candidates
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates the controller peer for recorderID together with
// its frames and control channels.
func NewController(sig Signaler, recorderID string, opts Options) (*Controller, error) {
	log := opts.logger().With("recorder", recorderID)
	opts.Log = log
	c := &Controller{
		sig:        sig,
		recorderID: recorderID,
		log:        log,
		done:       make(chan struct{}),
	}

	pc, err := newPeerConnection(opts, sig, recorderID, c.markDone)
	if err != nil {
		return nil, err
	}
	c.pc = pc
	c.cands.pc = pc

	ordered := true
	framesDC, err := pc.CreateDataChannel(FramesLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("peer: create frames channel: %w", err)
	}
	controlDC, err := pc.CreateDataChannel(ControlLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("peer: create control channel: %w", err)
	}
	for _, dc := range []*webrtc.DataChannel{framesDC, controlDC} {
		dc := dc
		dc.OnOpen(func() { log.Info("data channel open", "label", dc.Label()) })
	}

	c.transport = transport.NewDataChannelTransport(framesDC, controlDC, log)
	return c, nil
}

// Transport returns the frames and control transport.
func (c *Controller) Transport() *transport.DataChannelTransport { return c.transport }

// Done is closed when the connection failed or was closed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Connect sends the offer.
func (c *Controller) Connect() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("peer: create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("peer: set local description: %w", err)
	}
	data, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return c.sig.SendOffer(c.recorderID, data)
}

func (c *Controller) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return fmt.Errorf("peer: decode answer: %w", err)
	}
	return c.cands.setRemote(answer)
}

func (c *Controller) HandleICECandidate(payload json.RawMessage) error {
	return c.cands.add(payload)
}

func (c *Controller) Close() error {
	c.markDone()
	return c.pc.Close()
}

func (c *Controller) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}
