package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/taskwire/taskrelay/internal/config"
	"github.com/taskwire/taskrelay/internal/relay"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	hub       *relay.Hub
	limits    *ConnectionLimits
	upgrader  websocket.Upgrader
	startTime time.Time
}

func NewServer(cfg *config.Config, hub *relay.Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:   e,
		config: cfg,
		hub:    hub,
		limits: NewConnectionLimits(
			cfg.MaxConnections,
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate,
			cfg.ConnectionBurst,
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigin, cfg.IsDevelopment()),
		},
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler returns the server's HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
