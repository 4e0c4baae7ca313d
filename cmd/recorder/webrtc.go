package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/junsooki/AirRec/internal/capture"
	"github.com/junsooki/AirRec/internal/config"
	"github.com/junsooki/AirRec/internal/peer"
	"github.com/junsooki/AirRec/internal/recorder"
	"github.com/junsooki/AirRec/internal/signaling"
	"github.com/junsooki/AirRec/internal/transport"
)

// viewerConn is one connected viewer with its own recorder.
type viewerConn struct {
	host *peer.Host
	rec  *recorder.Recorder
}

// webrtcHost answers viewer offers and runs a recorder per viewer.
type webrtcHost struct {
	cfg    *config.RecorderConfig
	source capture.Source
	opts   recorder.Options
	log    *slog.Logger
	sig    *signaling.Client

	mu      sync.Mutex
	viewers map[string]*viewerConn
}

func runWebRTC(cfg *config.RecorderConfig, source capture.Source, opts recorder.Options, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := &webrtcHost{
		cfg:     cfg,
		source:  source,
		opts:    opts,
		log:     log,
		viewers: make(map[string]*viewerConn),
	}
	h.sig = signaling.NewClient(cfg.SignalingURL, cfg.ID, signaling.RoleRecorder, signaling.Handler{
		OnOffer:        h.handleOffer,
		OnICECandidate: h.handleICECandidate,
	}, log)

	if err := h.sig.Connect(ctx); err != nil {
		return err
	}
	defer h.sig.Close()
	log.Info("recorder ready, share this id with viewers", "id", cfg.ID)

	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-h.sig.Done():
		log.Warn("signaling connection lost")
	}
	h.closeAll()
	return nil
}

func (h *webrtcHost) handleOffer(from string, payload json.RawMessage) {
	log := h.log.With("viewer", from)
	log.Info("received offer")
	h.drop(from)

	host, err := peer.NewHost(h.sig, from, peer.Options{Log: h.log})
	if err != nil {
		log.Error("create host peer", "err", err)
		return
	}
	rec := recorder.New(h.source, host.Transport(), h.opts)
	host.Transport().OnControl(func(cmd transport.Command) {
		log.Info("received command", "type", cmd.Type)
		handleCommand(rec, cmd.Type, log)
	})

	vc := &viewerConn{host: host, rec: rec}
	h.mu.Lock()
	h.viewers[from] = vc
	h.mu.Unlock()

	if err := host.HandleOffer(payload); err != nil {
		log.Error("handle offer", "err", err)
		h.drop(from)
		return
	}

	go func() {
		if h.cfg.AutoStart {
			select {
			case <-host.Ready():
				handleCommand(rec, transport.CommandStart, log)
			case <-host.Done():
			}
		}
		<-host.Done()
		log.Info("viewer disconnected")
		h.remove(from, vc)
	}()
}

func (h *webrtcHost) handleICECandidate(from string, payload json.RawMessage) {
	h.mu.Lock()
	vc := h.viewers[from]
	h.mu.Unlock()
	if vc == nil {
		return
	}
	if err := vc.host.HandleICECandidate(payload); err != nil {
		h.log.Warn("handle ice candidate", "viewer", from, "err", err)
	}
}

// remove stops vc if it is still the connection registered for id.
func (h *webrtcHost) remove(id string, vc *viewerConn) {
	h.mu.Lock()
	if h.viewers[id] == vc {
		delete(h.viewers, id)
	}
	h.mu.Unlock()
	vc.close()
}

func (h *webrtcHost) drop(id string) {
	h.mu.Lock()
	vc := h.viewers[id]
	delete(h.viewers, id)
	h.mu.Unlock()
	if vc != nil {
		vc.close()
	}
}

func (h *webrtcHost) closeAll() {
	h.mu.Lock()
	viewers := h.viewers
	h.viewers = make(map[string]*viewerConn)
	h.mu.Unlock()
	for _, vc := range viewers {
		vc.close()
	}
}

func (vc *viewerConn) close() {
	vc.rec.Stop()
	_ = vc.host.Close()
}
