package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/taskwire/taskrelay/internal/metrics"
)

const (
	// Actor command timeout: prevents callers blocking forever if the hub is stuck.
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdChannelSize = 256
)

// ErrHubStopped is returned by Register once the hub has shut down.
var ErrHubStopped = errors.New("hub stopped")

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	replyChannel chan registerReply
}

type registerReply struct {
	id  uuid.UUID
	err error
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type joinAdminCmd struct {
	baseHubCmd
	id uuid.UUID
}

type broadcastCmd struct {
	baseHubCmd
	kind  Kind
	frame []byte
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type adminCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the broadcast relay: it registers connections, tracks admin group
// membership, and fans received event frames out to every live connection
// (sender included). All state lives in the run goroutine; public methods
// only exchange commands with it, so no locking is needed.
//
// Delivery is at-most-once with no replay: a connection that is down at
// broadcast time permanently misses that event. Clients reconcile through
// the CRUD API, not through the relay.
type Hub struct {
	cmdCh     chan hubCmd
	clock     clockwork.Clock
	clients   map[uuid.UUID]*clientWriter
	admins    map[uuid.UUID]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (h *Hub) markDone() {
	h.closeOnce.Do(func() { close(h.done) })
}

// NewHub creates a hub and starts its actor goroutine.
func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, cmdChannelSize),
		clock:   clock,
		clients: make(map[uuid.UUID]*clientWriter),
		admins:  make(map[uuid.UUID]struct{}),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a connection and returns its process-scoped identifier.
// No authentication: any transport-level connection may attach.
func (h *Hub) Register(conn *websocket.Conn) (uuid.UUID, error) {
	replyCh := make(chan registerReply, 1)

	select {
	case h.cmdCh <- registerCmd{connection: conn, replyChannel: replyCh}:
	case <-h.done:
		return uuid.Nil, ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.id, reply.err
	case <-h.done:
		return uuid.Nil, ErrHubStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection and clears its admin membership.
// Idempotent: unknown ids are a no-op. Clean and unclean termination
// are treated identically.
func (h *Hub) Unregister(id uuid.UUID) {
	select {
	case h.cmdCh <- unregisterCmd{id: id}:
	case <-h.done:
	}
}

// JoinAdmin adds a connection to the admin observer group. Set semantics:
// repeated joins are idempotent. The relay performs no authorization; the
// caller's application layer is trusted to gate who invokes this. There is
// no leave operation; membership is cleared only by Unregister.
func (h *Hub) JoinAdmin(id uuid.UUID) {
	select {
	case h.cmdCh <- joinAdminCmd{id: id}:
	case <-h.done:
	}
}

// Broadcast fans the frame out to every live connection, sender included.
// The frame is forwarded verbatim; the hub never parses the payload.
// Per-recipient failures are swallowed and never surface to the sender.
func (h *Hub) Broadcast(kind Kind, frame []byte) {
	select {
	case h.cmdCh <- broadcastCmd{kind: kind, frame: frame}:
	case <-h.done:
	}
}

// ClientCount returns the number of live connections, or -1 on timeout.
func (h *Hub) ClientCount() int {
	return h.queryCount(func(replyCh chan int) hubCmd {
		return clientCountCmd{replyChannel: replyCh}
	})
}

// AdminCount returns the size of the admin group, or -1 on timeout.
func (h *Hub) AdminCount() int {
	return h.queryCount(func(replyCh chan int) hubCmd {
		return adminCountCmd{replyChannel: replyCh}
	})
}

func (h *Hub) queryCount(makeCmd func(chan int) hubCmd) int {
	replyCh := make(chan int, 1)

	select {
	case h.cmdCh <- makeCmd(replyCh):
	case <-h.done:
		return -1
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return -1
	case <-timer.Chan():
		slog.Warn("Hub count query timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all client connections with a close frame.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded, forcing exit", "timeout", stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
		h.markDone()
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("relay internal error")
			h.markDone()
		}
	}()

	// Command channel depth is sampled once a second.
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > cmdChannelSize*4/5 {
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case joinAdminCmd:
				h.handleJoinAdmin(c.id)
			case broadcastCmd:
				h.handleBroadcast(c)
			case clientCountCmd:
				c.replyChannel <- len(h.clients)
			case adminCountCmd:
				c.replyChannel <- len(h.admins)
			case stopCmd:
				h.handleStop()
				h.markDone()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	id := uuid.New()
	h.clients[id] = newClientWriter(c.connection, h.clock)

	metrics.HubConnectedClients.Set(float64(len(h.clients)))

	slog.Debug("Client registered", "connection_id", id.String(), "total_clients", len(h.clients))
	c.replyChannel <- registerReply{id: id}
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	writer, exists := h.clients[id]
	if !exists {
		return
	}

	writer.stop()
	delete(h.clients, id)
	delete(h.admins, id)

	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	metrics.HubAdminGroupSize.Set(float64(len(h.admins)))

	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handleJoinAdmin(id uuid.UUID) {
	if _, exists := h.clients[id]; !exists {
		slog.Warn("Join-admin for unknown connection ignored", "connection_id", id.String())
		return
	}

	h.admins[id] = struct{}{}
	metrics.HubAdminGroupSize.Set(float64(len(h.admins)))
	slog.Info("Client joined admin group", "connection_id", id.String(), "group_size", len(h.admins))
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	// Fan-out covers every live connection at this instant, sender included.
	// The admin group deliberately does not scope delivery: the upstream
	// contract broadcasts all four data events to everyone.
	metrics.EventsBroadcastTotal.WithLabelValues(string(c.kind)).Inc()
	metrics.BroadcastFanout.Observe(float64(len(h.clients)))

	var slow []uuid.UUID
	for id, writer := range h.clients {
		select {
		case writer.sendCh <- c.frame:
		default:
			// Treated as a failed write to this one recipient: the rest of
			// the fan-out continues and the sender never sees an error.
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		slog.Warn("Disconnecting slow client", "connection_id", id.String())
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(id)
	}
}

func (h *Hub) handleStop() {
	total := len(h.clients)
	slog.Info("Hub shutting down", "total_clients", total)
	h.closeAllClients("relay shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes every client connection with the given reason.
// Used during graceful shutdown and panic recovery.
func (h *Hub) closeAllClients(reason string) {
	for id, writer := range h.clients {
		writer.stopGraceful(reason)
		delete(h.clients, id)
		delete(h.admins, id)
	}
	metrics.HubConnectedClients.Set(0)
	metrics.HubAdminGroupSize.Set(0)
}
