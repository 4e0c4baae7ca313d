// Package config parses the command-line and YAML configuration of the
// recorder and viewer binaries.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/junsooki/AirRec/internal/capture"
	"github.com/junsooki/AirRec/internal/differ"
	"github.com/junsooki/AirRec/internal/framequeue"
	"github.com/junsooki/AirRec/internal/recorder"
)

// Transport modes of the recorder.
const (
	TransportUI        = "ui"
	TransportWebSocket = "ws"
	TransportWebRTC    = "webrtc"
)

// FPS bounds accepted by Validate.
const (
	MinFPS = 1
	MaxFPS = 60
)

// RecorderConfig holds the runtime configuration of the recorder binary.
type RecorderConfig struct {
	ID            string `yaml:"id"`
	Transport     string `yaml:"transport"`
	SubscriberURL string `yaml:"subscriber_url"`
	SignalingURL  string `yaml:"signaling_url"`

	FPS                int `yaml:"fps"`
	DiffThreshold      int `yaml:"diff_threshold"`
	MaxCaptureFailures int `yaml:"max_capture_failures"`

	QueueStrategy string        `yaml:"queue_strategy"`
	QueueCapacity int           `yaml:"queue_capacity"`
	QueueOverflow string        `yaml:"queue_overflow"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	AutoStart   bool   `yaml:"autostart"`

	ConfigFile string `yaml:"-"`
}

// DefaultRecorderConfig returns the recorder defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Transport:          TransportUI,
		SignalingURL:       "ws://localhost:8080",
		FPS:                recorder.DefaultFPS,
		DiffThreshold:      differ.DefaultThreshold,
		MaxCaptureFailures: capture.DefaultMaxConsecutiveFailures,
		QueueStrategy:      framequeue.Stream.String(),
		QueueOverflow:      framequeue.Block.String(),
		PollInterval:       framequeue.DefaultPollInterval,
		LogLevel:           "info",
	}
}

// ParseRecorderFlags parses args (without the program name) for the
// recorder binary.
func ParseRecorderFlags(args []string) (*RecorderConfig, error) {
	cfg := DefaultRecorderConfig()
	fs := flag.NewFlagSet("recorder", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file; flags given explicitly take precedence")
	fs.StringVar(&cfg.ID, "id", cfg.ID, "Recorder ID (auto-generated if empty)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Frame transport: ui, ws or webrtc")
	fs.StringVar(&cfg.SubscriberURL, "subscriber", cfg.SubscriberURL, "Subscriber WebSocket URL (ws transport)")
	fs.StringVar(&cfg.SignalingURL, "signaling", cfg.SignalingURL, "Signaling server WebSocket URL (webrtc transport)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Target frames per second")
	fs.IntVar(&cfg.DiffThreshold, "threshold", cfg.DiffThreshold, "Differing bytes still treated as an unchanged frame")
	fs.IntVar(&cfg.MaxCaptureFailures, "max-capture-failures", cfg.MaxCaptureFailures, "Failed grabs in a row before capture gives up")
	fs.StringVar(&cfg.QueueStrategy, "queue", cfg.QueueStrategy, "Frame queue strategy: stream or polled")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "Pending frame limit (0 = unbounded)")
	fs.StringVar(&cfg.QueueOverflow, "queue-overflow", cfg.QueueOverflow, "Full queue policy: block, drop-oldest or reject-new")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Batch interval of the polled queue")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (disabled if empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.BoolVar(&cfg.AutoStart, "autostart", cfg.AutoStart, "Start recording as soon as the transport is up")

	if err := parse(fs, args, &cfg); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = newID("recorder")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enum values.
func (c *RecorderConfig) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportUI, TransportWebRTC:
	case TransportWebSocket:
		if c.SubscriberURL == "" {
			errs = append(errs, errors.New("ws transport needs -subscriber"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.Transport == TransportWebRTC && c.SignalingURL == "" {
		errs = append(errs, errors.New("webrtc transport needs -signaling"))
	}
	if c.FPS < MinFPS || c.FPS > MaxFPS {
		errs = append(errs, fmt.Errorf("fps %d out of range [%d, %d]", c.FPS, MinFPS, MaxFPS))
	}
	if c.DiffThreshold < 0 {
		errs = append(errs, fmt.Errorf("negative threshold %d", c.DiffThreshold))
	}
	if c.MaxCaptureFailures < 0 {
		errs = append(errs, fmt.Errorf("negative max capture failures %d", c.MaxCaptureFailures))
	}
	if _, err := c.QueueOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// QueueOptions builds the frame queue options.
func (c *RecorderConfig) QueueOptions() (framequeue.Options, error) {
	strategy, err := framequeue.ParseStrategy(c.QueueStrategy)
	if err != nil {
		return framequeue.Options{}, err
	}
	overflow, err := framequeue.ParseOverflow(c.QueueOverflow)
	if err != nil {
		return framequeue.Options{}, err
	}
	if c.QueueCapacity < 0 {
		return framequeue.Options{}, fmt.Errorf("negative queue capacity %d", c.QueueCapacity)
	}
	return framequeue.Options{
		Strategy:     strategy,
		Capacity:     c.QueueCapacity,
		Overflow:     overflow,
		PollInterval: c.PollInterval,
	}, nil
}

// RecorderOptions builds the session options. Logger and Metrics are left
// for the caller.
func (c *RecorderConfig) RecorderOptions() (recorder.Options, error) {
	q, err := c.QueueOptions()
	if err != nil {
		return recorder.Options{}, err
	}
	return recorder.Options{
		FPS:           c.FPS,
		DiffThreshold: c.DiffThreshold,
		Queue:         q,
	}, nil
}

// ViewerConfig holds the configuration of the viewer binary.
type ViewerConfig struct {
	ID           string `yaml:"id"`
	Listen       string `yaml:"listen"`
	SignalingURL string `yaml:"signaling_url"`
	HostID       string `yaml:"host_id"`
	LogLevel     string `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
}

// ParseViewerFlags parses args (without the program name) for the viewer
// binary.
func ParseViewerFlags(args []string) (*ViewerConfig, error) {
	cfg := ViewerConfig{
		SignalingURL: "ws://localhost:8080",
		LogLevel:     "info",
	}
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file; flags given explicitly take precedence")
	fs.StringVar(&cfg.ID, "id", cfg.ID, "Viewer ID (auto-generated if empty)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Accept recorder WebSocket connections on this address")
	fs.StringVar(&cfg.SignalingURL, "signaling", cfg.SignalingURL, "Signaling server WebSocket URL")
	fs.StringVar(&cfg.HostID, "host", cfg.HostID, "Recorder ID to connect to over WebRTC")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	if err := parse(fs, args, &cfg); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = newID("viewer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate requires exactly one of Listen and HostID.
func (c *ViewerConfig) Validate() error {
	var errs []error
	switch {
	case c.Listen == "" && c.HostID == "":
		errs = append(errs, errors.New("one of -listen or -host is required"))
	case c.Listen != "" && c.HostID != "":
		errs = append(errs, errors.New("-listen and -host are mutually exclusive"))
	}
	if c.HostID != "" && c.SignalingURL == "" {
		errs = append(errs, errors.New("-host needs -signaling"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// parse parses args into fs and overlays the -config file, if any. Flags set
// on the command line win over the file.
func parse(fs *flag.FlagSet, args []string, dst any) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Lookup("config").Value.String()
	if path == "" {
		return nil
	}

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := loadYAML(path, dst); err != nil {
		return err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("config: reapply -%s: %w", name, err)
		}
	}
	return nil
}

func loadYAML(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ParseLevel parses a slog level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// NewLogger returns a text logger writing to w at the given level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func newID(role string) string {
	return fmt.Sprintf("%s-%s", role, uuid.NewString()[:8])
}
