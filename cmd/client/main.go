// Command client is an observer and probe tool for the relay: it connects,
// optionally joins the admin group, prints every received event, and can
// emit a single test event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskwire/taskrelay/internal/client"
	"github.com/taskwire/taskrelay/internal/relay"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:3001/ws", "Relay WebSocket URL")
	joinAdmin := flag.Bool("admin", false, "Join the admin observer group")
	emitKind := flag.String("emit", "", "Event kind to emit once after connecting")
	emitPayload := flag.String("payload", "{}", "JSON payload for the emitted event")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	c := client.New(*serverURL, logger)

	for _, kind := range relay.DataKinds() {
		kind := kind
		c.On(kind, func(payload json.RawMessage) {
			fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), kind, string(payload))
		})
	}

	if *joinAdmin {
		if err := c.JoinAdmin(); err != nil {
			logger.Error("Failed to join admin group", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	if *emitKind != "" {
		// Wait for the initial connection before emitting.
		for i := 0; i < 50; i++ {
			if c.Connected() {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if err := c.Emit(relay.Kind(*emitKind), json.RawMessage(*emitPayload)); err != nil {
			logger.Error("Failed to emit event", "kind", *emitKind, "error", err)
		} else {
			logger.Info("Event emitted", "kind", *emitKind)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down client...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
