package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWriteWait bounds a single frame write.
	DefaultWriteWait = 10 * time.Second
	// DefaultReadLimit is the largest frame message a FrameServer accepts.
	DefaultReadLimit = 64 * 1024 * 1024
)

// WebSocketSink writes frames as JSON text messages to an outbound
// websocket connection.
type WebSocketSink struct {
	conn      *websocket.Conn
	log       *slog.Logger
	writeWait time.Duration

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	done      chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects to a frame subscriber at url.
func DialWebSocket(ctx context.Context, url string, log *slog.Logger) (*WebSocketSink, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return NewWebSocketSink(conn, log), nil
}

// NewWebSocketSink takes ownership of conn and starts reading control frames.
func NewWebSocketSink(conn *websocket.Conn, log *slog.Logger) *WebSocketSink {
	if log == nil {
		log = slog.Default()
	}
	s := &WebSocketSink{
		conn:      conn,
		log:       log,
		writeWait: DefaultWriteWait,
		done:      make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Done is closed once the connection is gone.
func (s *WebSocketSink) Done() <-chan struct{} {
	return s.done
}

func (s *WebSocketSink) SendFrame(p Payload) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteJSON(p); err != nil {
		// gorilla keeps the first write error and fails every later write
		// with it, so the connection is gone either way.
		s.shutdown()
		return fmt.Errorf("%w: websocket write: %v", ErrClosed, err)
	}
	return nil
}

// Close sends a close frame and releases the connection.
func (s *WebSocketSink) Close() error {
	if s.isClosed() {
		return nil
	}
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.shutdown()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("websocket close: %w", err)
	}
	return nil
}

// readLoop processes pings and close frames; the subscriber sends nothing else.
func (s *WebSocketSink) readLoop() {
	defer s.shutdown()
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if !s.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "err", err)
			}
			return
		}
	}
}

func (s *WebSocketSink) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *WebSocketSink) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// FrameServer accepts websocket connections from recorders and hands every
// decoded payload to a callback.
type FrameServer struct {
	upgrader  websocket.Upgrader
	log       *slog.Logger
	readLimit int64

	mu      sync.Mutex
	onFrame func(Payload)
}

// NewFrameServer creates a FrameServer.
func NewFrameServer(log *slog.Logger) *FrameServer {
	if log == nil {
		log = slog.Default()
	}
	return &FrameServer{
		upgrader:  websocket.Upgrader{ReadBufferSize: 64 * 1024},
		log:       log,
		readLimit: DefaultReadLimit,
	}
}

func (s *FrameServer) OnFrame(cb func(p Payload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = cb
}

func (s *FrameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.readLimit)

	s.log.Info("recorder connected", "remote", r.RemoteAddr)
	for {
		var p Payload
		if err := conn.ReadJSON(&p); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("recorder disconnected", "remote", r.RemoteAddr)
			} else {
				s.log.Warn("read frame failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}
		s.mu.Lock()
		cb := s.onFrame
		s.mu.Unlock()
		if cb != nil {
			cb(p)
		}
	}
}
