// Command host runs the execution host: the only process that unseals the
// root secret and touches wallet state. The relay reaches it over TCP on a
// developer machine or over vsock when it runs inside a Nitro Enclave.
//
// Permission prompts are served over HTTP on DW_PROMPT_ADDR together with
// Prometheus metrics.
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshaybapat6365/dark-wallet/internal/config"
	"github.com/akshaybapat6365/dark-wallet/internal/host"
	"github.com/akshaybapat6365/dark-wallet/internal/hostlink"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/metrics"
	"github.com/akshaybapat6365/dark-wallet/internal/prompt"
	"github.com/akshaybapat6365/dark-wallet/internal/settings"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
	"github.com/akshaybapat6365/dark-wallet/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateVault(); err != nil {
		log.Fatalf("Invalid vault configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer storage.Close(store)

	kms, err := vault.NewKMS(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize vault", "provider", cfg.VaultProvider, "error", err)
		os.Exit(1)
	}
	rootVault := vault.New(store, kms)
	defer rootVault.Close()

	slog.Info("initialized storage and vault", "storage", cfg.StorageBackend, "vault", kms.Provider())

	m := metrics.New()

	coordinator := prompt.NewCoordinator(
		prompt.WithTimeout(cfg.PromptTimeout),
		prompt.WithSurface(prompt.LogSurface("http://"+cfg.PromptAddr)),
		prompt.WithMetrics(m),
	)
	promptServer := prompt.NewServer(coordinator, map[string]http.Handler{
		"GET /metrics": m.Handler(),
	})

	h, err := host.New(host.Config{
		LoadSettings: func() (*settings.Settings, error) { return settings.Load(cfg.SettingsPath) },
		KeyMaterial:  rootVault,
		Storage:      store,
		Permissions:  coordinator,
		Metrics:      m,
	})
	if err != nil {
		slog.Error("failed to create host", "error", err)
		os.Exit(1)
	}

	promptLn, err := net.Listen("tcp", cfg.PromptAddr)
	if err != nil {
		slog.Error("failed to listen for prompts", "addr", cfg.PromptAddr, "error", err)
		os.Exit(1)
	}
	linkLn, err := hostlink.Listen(cfg)
	if err != nil {
		slog.Error("failed to listen for relay", "transport", cfg.HostTransport, "error", err)
		os.Exit(1)
	}
	link := hostlink.NewServer(h)

	serverErrors := make(chan error, 2)
	go func() { serverErrors <- promptServer.Serve(promptLn) }()
	go func() { serverErrors <- link.Serve(linkLn) }()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		_ = h.Close()
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := link.Shutdown(ctx); err != nil {
			slog.Error("error during host link shutdown", "error", err)
		}
		if err := promptServer.Shutdown(ctx); err != nil {
			slog.Error("error during prompt surface shutdown", "error", err)
		}
		if err := h.Close(); err != nil {
			slog.Error("error closing wallet", "error", err)
		}

		slog.Info("host stopped")
	}
}
