// The broker binary runs the chat server.
//
// Usage: broker [port] [log_path]
//
// Defaults: port 5555, log path chat.log. Exit code 0 on clean termination,
// 1 on startup failure. SIGINT stops the accept loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chatbroker/internal/broker"
	"chatbroker/internal/chatlog"
	"chatbroker/internal/config"
	"chatbroker/internal/logging"
	"chatbroker/internal/metrics"
	"chatbroker/internal/ops"
)

func main() {
	cfg, err := config.Load(os.Args[1:]...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	events, err := chatlog.Open(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open log file: %s\n", cfg.LogPath)
		os.Exit(1)
	}
	defer events.Close()

	m := metrics.NewRegistry()
	b := broker.New(cfg, events, logger, m)
	if err := b.Listen(); err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}

	var opsServer *ops.Server
	if cfg.OpsAddr != "" {
		opsServer = ops.NewServer(b, m, logger)
		go func() {
			if err := opsServer.Start(cfg.OpsAddr); err != nil {
				logger.Warn("ops server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Chat server started on port %d. Log file: %s\n", cfg.Port, cfg.LogPath)
	logger.Info("broker started", zap.String("addr", b.Addr().String()))

	if err := b.Serve(ctx); err != nil {
		logger.Error("accept loop ended", zap.Error(err))
	}

	b.Shutdown()
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		opsServer.Shutdown(shutdownCtx) // nolint:errcheck
		cancel()
	}
	events.Event("Server shutting down.")
	logger.Info("broker stopped")
}
