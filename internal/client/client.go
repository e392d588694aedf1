// Package client is a Go client for the task event relay.
//
// It maintains a WebSocket connection with automatic reconnection and
// exponential backoff. Event handlers and admin group membership survive
// reconnects: handlers are re-dispatched against the new connection and the
// join-admin control message is re-emitted, because the relay itself keeps
// no reconnection state.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskwire/taskrelay/internal/relay"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// ErrNotConnected is returned when emitting while the connection is down.
// The relay offers no queueing: an event emitted while disconnected is lost.
var ErrNotConnected = errors.New("not connected to relay")

// Handler processes the payload of one received event.
type Handler func(payload json.RawMessage)

// Client is a reconnecting relay client.
type Client struct {
	serverURL string
	logger    *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	admin    bool
	handlers map[relay.Kind]Handler
}

// New creates a client for the given relay URL (e.g. "ws://localhost:3001/ws").
func New(serverURL string, logger *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		logger:    logger,
		handlers:  make(map[relay.Kind]Handler),
	}
}

// On registers a handler for an event kind. Registering again replaces the
// previous handler. Handlers run on the read goroutine, one at a time.
func (c *Client) On(kind relay.Kind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = h
}

// JoinAdmin declares this client an admin observer. The control message is
// sent immediately when connected and re-sent after every reconnect.
func (c *Client) JoinAdmin() error {
	c.mu.Lock()
	c.admin = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Will be sent on the next (re)connect.
		return nil
	}
	return c.emit(relay.KindJoinAdmin, nil)
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and processes events until ctx is cancelled, reconnecting
// with exponential backoff on any transport failure.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
		if err != nil {
			c.logger.Warn("Relay connection failed", "url", c.serverURL, "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		c.logger.Info("Connected to relay", "url", c.serverURL)

		c.mu.Lock()
		c.conn = conn
		admin := c.admin
		c.mu.Unlock()

		if admin {
			if err := c.emit(relay.KindJoinAdmin, nil); err != nil {
				c.logger.Warn("Failed to re-join admin group", "error", err)
			}
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Relay connection lost", "error", err)
			}
			return
		}

		env, err := relay.DecodeEnvelope(frame)
		if err != nil {
			c.logger.Debug("Ignoring undecodable frame", "error", err)
			continue
		}

		c.mu.Lock()
		handler := c.handlers[env.Event]
		c.mu.Unlock()

		if handler != nil {
			handler(env.Payload)
		}
	}
}

// Emit sends an event to the relay. Payload bytes are forwarded opaquely.
func (c *Client) Emit(kind relay.Kind, payload json.RawMessage) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid event kind %q", string(kind))
	}
	return c.emit(kind, payload)
}

// EmitTaskCreated announces a created task.
func (c *Client) EmitTaskCreated(payload json.RawMessage) error {
	return c.emit(relay.KindTaskCreated, payload)
}

// EmitTaskStatusUpdated announces a task status change.
func (c *Client) EmitTaskStatusUpdated(payload json.RawMessage) error {
	return c.emit(relay.KindTaskStatusUpdated, payload)
}

// EmitTaskDeleted announces a deleted task.
func (c *Client) EmitTaskDeleted(payload json.RawMessage) error {
	return c.emit(relay.KindTaskDeleted, payload)
}

// EmitTaskUpdated announces updated task data.
func (c *Client) EmitTaskUpdated(payload json.RawMessage) error {
	return c.emit(relay.KindTaskUpdatedData, payload)
}

func (c *Client) emit(kind relay.Kind, payload json.RawMessage) error {
	frame, err := relay.EncodeEnvelope(kind, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", string(kind), err)
	}
	return nil
}
