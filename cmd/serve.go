package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/lorein/lore/api"
	"github.com/lorein/lore/internal/app"
	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/log"
)

// runServe starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr(cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting HTTP API server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(api.Deps{
		Sessions:     a.Sessions,
		Tracker:      a.Tracker,
		Orchestrator: a.Orchestrator,
		Ingestor:     a.Ingestor,
		Pool:         a.Pool,
		SQLite:       a.SQLite,
		Logger:       logger,
	})
	return server.Run(ctx, addr)
}
