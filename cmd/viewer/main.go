package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/junsooki/AirRec/internal/config"
	"github.com/junsooki/AirRec/internal/display"
	"github.com/junsooki/AirRec/internal/peer"
	"github.com/junsooki/AirRec/internal/signaling"
	"github.com/junsooki/AirRec/internal/transport"
)

func main() {
	cfg, err := config.ParseViewerFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	if cfg.Listen != "" {
		err = runListener(cfg, log)
	} else {
		err = runRemote(cfg, log)
	}
	if err != nil {
		log.Error("viewer failed", "err", err)
		os.Exit(1)
	}
}

// runListener accepts frames pushed by a recorder in ws mode.
func runListener(cfg *config.ViewerConfig, log *slog.Logger) error {
	viewer := display.NewViewer("AirRec Viewer", nil)
	frames := transport.NewFrameServer(log)
	frames.OnFrame(func(p transport.Payload) {
		if err := viewer.ShowPayload(p); err != nil {
			log.Warn("show frame", "err", err)
		}
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: frames, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("waiting for recorders", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("frame server", "err", err)
		}
	}()

	// Ebitengine RunGame must be on the main goroutine.
	err := viewer.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	return err
}

// runRemote connects to a recorder over WebRTC and controls it with R and S.
func runRemote(cfg *config.ViewerConfig, log *slog.Logger) error {
	var (
		ctrl      atomic.Pointer[peer.Controller]
		recording atomic.Bool
		sig       *signaling.Client
	)

	viewer := display.NewViewer("AirRec Viewer - "+cfg.HostID, func(cmd transport.CommandType) {
		c := ctrl.Load()
		if c == nil {
			log.Warn("not connected yet")
			return
		}
		err := c.Transport().SendControl(transport.Command{Type: cmd, Timestamp: time.Now().UnixMilli()})
		if err != nil {
			log.Warn("send command", "type", cmd, "err", err)
			return
		}
		recording.Store(cmd == transport.CommandStart)
	})
	viewer.SetRecordingFunc(recording.Load)

	sig = signaling.NewClient(cfg.SignalingURL, cfg.ID, signaling.RoleViewer, signaling.Handler{
		OnRegistered: func() {
			c, err := peer.NewController(sig, cfg.HostID, peer.Options{Log: log})
			if err != nil {
				log.Error("create controller peer", "err", err)
				return
			}
			c.Transport().OnFrame(func(p transport.Payload) {
				if err := viewer.ShowPayload(p); err != nil {
					log.Warn("show frame", "err", err)
				}
			})
			ctrl.Store(c)
			if err := c.Connect(); err != nil {
				log.Error("send offer", "err", err)
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if c := ctrl.Load(); c != nil {
				if err := c.HandleAnswer(payload); err != nil {
					log.Warn("handle answer", "err", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if c := ctrl.Load(); c != nil {
				if err := c.HandleICECandidate(payload); err != nil {
					log.Warn("handle ice candidate", "err", err)
				}
			}
		},
		OnRecorderDisconnected: func(id string) {
			if id == cfg.HostID {
				log.Warn("recorder disconnected", "recorder", id)
				recording.Store(false)
			}
		},
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := sig.Connect(ctx)
	cancel()
	if err != nil {
		return err
	}
	defer sig.Close()

	err = viewer.Run()
	if c := ctrl.Load(); c != nil {
		_ = c.Close()
	}
	return err
}
