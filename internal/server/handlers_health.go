package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskwire/taskrelay/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness verifies the hub actor is still answering queries.
// A count of -1 means the hub goroutine is stuck or gone.
func (s *Server) handleReadiness(c echo.Context) error {
	if s.hub.ClientCount() < 0 {
		return c.JSON(503, map[string]any{
			"status":       "unhealthy",
			"failed_check": "hub",
		})
	}
	return c.JSON(200, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
