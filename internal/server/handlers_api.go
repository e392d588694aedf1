package server

import (
	"time"

	"github.com/labstack/echo/v4"
)

// statsResponse is consumed by the admin dashboard of the surrounding
// to-do application.
type statsResponse struct {
	ConnectedClients int     `json:"connected_clients"`
	AdminGroupSize   int     `json:"admin_group_size"`
	UniqueIPs        int     `json:"unique_ips"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

func (s *Server) handleStats(c echo.Context) error {
	clients := s.hub.ClientCount()
	admins := s.hub.AdminCount()
	if clients < 0 || admins < 0 {
		return c.JSON(503, map[string]string{"error": "hub unavailable"})
	}

	return c.JSON(200, statsResponse{
		ConnectedClients: clients,
		AdminGroupSize:   admins,
		UniqueIPs:        s.limits.PerIP().UniqueIPs(),
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
	})
}
