// Command relay accepts gateway websockets and forwards their requests to
// the execution host, starting it on demand when DW_HOST_COMMAND is set.
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
	"github.com/akshaybapat6365/dark-wallet/internal/hostlink"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	dialer, err := hostlink.NewDialer(cfg)
	if err != nil {
		slog.Error("failed to create host dialer", "error", err)
		os.Exit(1)
	}
	launcher := hostlink.NewLauncher(cfg.HostCommand)
	defer launcher.Stop()

	client := hostlink.NewClient(dialer, hostlink.WithLauncher(launcher))
	router := relay.New(cfg, client, metrics.New())

	slog.Info("initialized host link",
		"transport", dialer.Transport(),
		"lazy_launch", launcher != nil,
		"allowed_origins", cfg.AllowedOrigins,
	)

	ln, err := net.Listen("tcp", cfg.RelayAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.RelayAddr, "error", err)
		os.Exit(1)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- router.Serve(ln)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := router.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("relay stopped")
	}
}
