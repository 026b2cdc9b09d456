package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/scanvault/docpipe/internal/app"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := server.New(cfg.Server.Addr, server.Deps{
		Orchestrator:   a.Orchestrator,
		Registry:       a.Registry,
		Batches:        a.Batches,
		Documents:      a.Documents,
		Gate:           a.Gate,
		TenantID:       cfg.Recognition.TenantID,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
