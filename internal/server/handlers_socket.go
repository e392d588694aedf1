package server

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/taskwire/taskrelay/internal/metrics"
	"github.com/taskwire/taskrelay/internal/relay"
)

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected", "remote_ip", ip, "reason", string(reason))
		return c.String(429, "Too many connections")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	id, err := s.hub.Register(conn)
	if err != nil {
		slog.Error("Failed to register with hub", "error", err)
		_ = conn.Close()
		return nil
	}
	defer s.hub.Unregister(id)

	// Read pump - blocks until the connection closes. Transport errors and
	// graceful closes both end here and both mean "disconnect".
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("Unexpected connection close", "connection_id", id.String(), "error", err)
			}
			break
		}
		s.dispatch(id, frame)
	}

	return nil
}

// dispatch routes one received frame: the control event updates group
// membership, data events are rebroadcast verbatim. Frames that decode to
// no known event have nowhere to go and are dropped, which mirrors an
// event bus with no handler registered.
func (s *Server) dispatch(id uuid.UUID, frame []byte) {
	env, err := relay.DecodeEnvelope(frame)
	if err != nil {
		slog.Debug("Dropping undecodable frame", "error", err)
		return
	}

	metrics.EventsReceivedTotal.WithLabelValues(string(env.Event)).Inc()

	if env.Event.Control() {
		s.hub.JoinAdmin(id)
		return
	}

	// Rebroadcast the original frame bytes, not a re-encoding: the payload
	// must reach every recipient byte-for-byte as sent.
	s.hub.Broadcast(env.Event, frame)
}
