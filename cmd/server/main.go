package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/taskwire/taskrelay/internal/config"
	"github.com/taskwire/taskrelay/internal/logging"
	"github.com/taskwire/taskrelay/internal/relay"
	"github.com/taskwire/taskrelay/internal/server"
)

func runGracefulShutdown(srv *server.Server, hub *relay.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay starting", "env", cfg.AppEnv, "port", cfg.Port, "allowed_origin", cfg.AllowedOrigin)

	clock := clockwork.NewRealClock()
	hub := relay.NewHub(clock)

	srv := server.NewServer(cfg, hub)

	done := runGracefulShutdown(srv, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
