package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/junsooki/AirRec/internal/capture"
	"github.com/junsooki/AirRec/internal/config"
	"github.com/junsooki/AirRec/internal/display"
	"github.com/junsooki/AirRec/internal/metrics"
	"github.com/junsooki/AirRec/internal/recorder"
	"github.com/junsooki/AirRec/internal/transport"
)

const drainTimeout = 10 * time.Second

func main() {
	cfg, err := config.ParseRecorderFlags(os.Args[1:])
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

	if err := run(cfg, log); err != nil {
		log.Error("recorder failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.RecorderConfig, log *slog.Logger) error {
	log.Info("airrec recorder starting",
		"id", cfg.ID,
		"transport", cfg.Transport,
		"fps", cfg.FPS,
		"threshold", cfg.DiffThreshold,
		"queue", cfg.QueueStrategy,
	)

	opts, err := cfg.RecorderOptions()
	if err != nil {
		return err
	}
	opts.Logger = log

	if cfg.MetricsAddr != "" {
		m, err := serveMetrics(cfg.MetricsAddr, log)
		if err != nil {
			return err
		}
		opts.Metrics = m
	}

	source := capture.NewScreenSource(cfg.MaxCaptureFailures)

	switch cfg.Transport {
	case config.TransportUI:
		return runUI(cfg, source, opts, log)
	case config.TransportWebSocket:
		return runWebSocket(cfg, source, opts, log)
	case config.TransportWebRTC:
		return runWebRTC(cfg, source, opts, log)
	}
	return fmt.Errorf("unknown transport %q", cfg.Transport)
}

// runUI records into an in-process preview window.
func runUI(cfg *config.RecorderConfig, source capture.Source, opts recorder.Options, log *slog.Logger) error {
	bus := transport.NewEventBus(4)
	defer bus.Close()

	rec := recorder.New(source, bus, opts)
	viewer := display.NewViewer("AirRec", func(cmd transport.CommandType) {
		handleCommand(rec, cmd, log)
	})
	viewer.SetRecordingFunc(rec.Capturing)

	events := bus.Subscribe()
	go func() {
		for e := range events {
			p, ok := transport.PayloadFromEvent(e)
			if !ok {
				continue
			}
			if err := viewer.ShowPayload(p); err != nil {
				log.Warn("show frame", "err", err)
			}
		}
	}()

	if cfg.AutoStart {
		if err := rec.Start(); err != nil {
			return err
		}
	}

	err := viewer.Run()
	rec.Stop()
	waitDrained(rec, log)
	return err
}

// runWebSocket streams to a subscriber until interrupted.
func runWebSocket(cfg *config.RecorderConfig, source capture.Source, opts recorder.Options, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	sink, err := transport.DialWebSocket(dialCtx, cfg.SubscriberURL, log)
	dialCancel()
	if err != nil {
		return err
	}
	defer sink.Close()

	rec := recorder.New(source, sink, opts)
	if err := rec.Start(); err != nil {
		return err
	}
	session := rec.Session()

	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-sink.Done():
		log.Warn("subscriber went away")
	case <-session.Done():
	}

	rec.Stop()
	return waitDrained(rec, log)
}

func handleCommand(rec *recorder.Recorder, cmd transport.CommandType, log *slog.Logger) {
	switch cmd {
	case transport.CommandStart:
		if err := rec.Start(); err != nil {
			log.Warn("start recording", "err", err)
		}
	case transport.CommandStop:
		rec.Stop()
	default:
		log.Warn("unknown command", "type", cmd)
	}
}

// waitDrained waits for the current session to deliver what it queued.
func waitDrained(rec *recorder.Recorder, log *slog.Logger) error {
	s := rec.Session()
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return s.Wait()
	case <-time.After(drainTimeout):
		log.Warn("session did not drain in time", "session", s.ID())
		return nil
	}
}

func serveMetrics(addr string, log *slog.Logger) (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "err", err)
		}
	}()
	return m, nil
}
