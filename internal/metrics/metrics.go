package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubConnectedClients tracks the number of live WebSocket connections
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of live WebSocket connections",
		},
	)

	// HubAdminGroupSize tracks the size of the admin observer group
	HubAdminGroupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_admin_group_size",
			Help: "Number of connections that joined the admin group",
		},
	)

	// EventsReceivedTotal tracks frames received from clients by event kind
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total event frames received from clients by kind",
		},
		[]string{"kind"},
	)

	// EventsBroadcastTotal tracks fan-outs dispatched by event kind
	EventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_broadcast_total",
			Help: "Total broadcasts dispatched by kind",
		},
		[]string{"kind"},
	)

	// BroadcastFanout tracks the number of recipients per broadcast
	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_fanout_size",
			Help:    "Number of recipients per broadcast",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// HubCommandChannelDepth tracks queued commands awaiting the hub goroutine
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_hub_command_channel_depth",
			Help: "Commands queued for the hub goroutine",
		},
	)

	// HubSlowClientsEvicted tracks clients dropped because their send buffer was full
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_clients_evicted_total",
			Help: "Clients disconnected because their send buffer was full at broadcast time",
		},
	)

	// HubStopTimeoutsTotal tracks hub shutdowns that exceeded the stop timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_stop_timeouts_total",
			Help: "Hub shutdowns that exceeded the stop timeout",
		},
	)

	// HubPanicsTotal tracks panics recovered in the hub goroutine
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_panics_total",
			Help: "Panics recovered in the hub goroutine",
		},
	)
)

// WebSocket Transport Metrics
var (
	// WebSocketMessageSendDuration tracks per-message write latency in seconds
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_websocket_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks keepalive pings that failed to send
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_websocket_ping_failures_total",
			Help: "Keepalive pings that failed to send",
		},
	)

	// ConnectionsRejectedTotal tracks upgrade requests rejected by connection limits
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Upgrade requests rejected by connection limits, by reason",
		},
		[]string{"reason"},
	)
)
