// Package peer sets up the WebRTC connection between a recorder (host) and
// a viewer (controller). The controller makes the offer and opens the
// channels; the host answers and accepts them.
package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannel labels.
const (
	FramesLabel  = "frames"
	ControlLabel = "control"
)

// DefaultICEServers is the default ICE server configuration.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// Signaler relays session descriptions and candidates to the other side.
// *signaling.Client implements it.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// Options configures a peer connection.
type Options struct {
	// ICEServers defaults to DefaultICEServers when nil.
	ICEServers []webrtc.ICEServer
	// API, if set, builds the PeerConnection instead of the package default.
	API        *webrtc.API
	Log        *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// newPeerConnection creates a PeerConnection that trickles candidates to
// target and reports terminal states through onDone.
func newPeerConnection(opts Options, sig Signaler, target string, onDone func()) (*webrtc.PeerConnection, error) {
	servers := opts.ICEServers
	if servers == nil {
		servers = DefaultICEServers
	}
	cfg := webrtc.Configuration{ICEServers: servers}

	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if opts.API != nil {
		pc, err = opts.API.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, err
	}

	log := opts.logger()
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("peer connection state", "peer", target, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			onDone()
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Warn("marshal ice candidate", "err", err)
			return
		}
		if err := sig.SendICECandidate(target, data); err != nil {
			log.Warn("send ice candidate", "peer", target, "err", err)
		}
	})
	return pc, nil
}

// candidates holds remote ICE candidates that arrive before the remote
// description is set.
type candidates struct {
	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
	remote  bool
}

func (c *candidates) add(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remote {
		c.pending = append(c.pending, candidate)
		return nil
	}
	return c.pc.AddICECandidate(candidate)
}

// setRemote applies desc and then the buffered candidates.
func (c *candidates) setRemote(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.remote = true
	for _, candidate := range c.pending {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			return err
		}
	}
	c.pending = nil
	return nil
}
