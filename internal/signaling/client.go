// Package signaling exchanges WebRTC offers, answers and ICE candidates
// between recorders and viewers through a relay server.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// ErrNotConnected is returned when sending before Connect or after Close.
var ErrNotConnected = errors.New("signaling: not connected")

// Handler holds callbacks for incoming messages. Nil callbacks are skipped.
// Callbacks run on the read goroutine.
type Handler struct {
	OnRegistered           func()
	OnOffer                func(from string, payload json.RawMessage)
	OnAnswer               func(from string, payload json.RawMessage)
	OnICECandidate         func(from string, payload json.RawMessage)
	OnRecordersUpdated     func(recorders []RecorderInfo)
	OnRecorderDisconnected func(recorderID string)
	OnError                func(msg string)
}

// Client is a WebSocket signaling client.
type Client struct {
	url     string
	id      string
	role    string
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// NewClient creates a client that registers as id with the given role.
func NewClient(url, id, role string, handler Handler, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:     url,
		id:      id,
		role:    role,
		handler: handler,
		log:     log.With("signaling", url),
		done:    make(chan struct{}),
	}
}

// Connect dials the server, registers and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(Message{Type: TypeRegister, ID: c.id, Role: c.role}); err != nil {
		c.Close()
		return fmt.Errorf("signaling: register: %w", err)
	}

	go c.readLoop(conn)
	go c.pingLoop()
	return nil
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) SendOffer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Target: target, Payload: payload})
}

func (c *Client) SendAnswer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeAnswer, Target: target, Payload: payload})
}

func (c *Client) SendICECandidate(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeICECandidate, Target: target, Payload: payload})
}

// RequestRecorders asks the server for the recorder list.
func (c *Client) RequestRecorders() error {
	return c.send(Message{Type: TypeListRecorders})
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Close()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("signaling read failed", "err", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	h := c.handler
	switch msg.Type {
	case TypeRegistered:
		c.log.Info("registered", "id", c.id, "role", c.role)
		if h.OnRegistered != nil {
			h.OnRegistered()
		}
	case TypeOffer:
		if h.OnOffer != nil {
			h.OnOffer(msg.From, msg.Payload)
		}
	case TypeAnswer:
		if h.OnAnswer != nil {
			h.OnAnswer(msg.From, msg.Payload)
		}
	case TypeICECandidate:
		if h.OnICECandidate != nil {
			h.OnICECandidate(msg.From, msg.Payload)
		}
	case TypeRecorders, TypeRecordersUpdated:
		if h.OnRecordersUpdated != nil {
			h.OnRecordersUpdated(msg.Recorders)
		}
	case TypeRecorderDisconnected:
		if h.OnRecorderDisconnected != nil {
			h.OnRecorderDisconnected(msg.RecorderID)
		}
	case TypeError:
		c.log.Warn("signaling error", "msg", msg.Error)
		if h.OnError != nil {
			h.OnError(msg.Error)
		}
	case TypePong:
	default:
		c.log.Debug("ignoring signaling message", "type", msg.Type)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(Message{Type: TypePing}); err != nil {
				c.log.Debug("ping failed", "err", err)
			}
		}
	}
}
