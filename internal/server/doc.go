// Package server hosts the relay's single network listener using the Echo framework.
//
// Routes: the WebSocket endpoint (/ws), health probes, Prometheus metrics, a stats
// endpoint for the admin dashboard, and build info. Handlers split by concern:
// handlers_socket.go, handlers_health.go, handlers_api.go.
package server
