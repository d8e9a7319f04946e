package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mihaimyh/gofeatured/internal/app"
	"github.com/mihaimyh/gofeatured/internal/config"
	"github.com/mihaimyh/gofeatured/storage/postgres"
)

func runServer(ctx context.Context) error {
	cfg := config.Load()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("version", version).Msg("starting server")

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.Serve(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runMigrate(down bool) error {
	cfg := config.Load()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required to run migrations")
	}

	if down {
		if err := postgres.MigrateDown(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info().Msg("migrations rolled back")
		return nil
	}
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func runReindex(ctx context.Context) error {
	cfg := config.Load()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	if !container.Search().Enabled() {
		return errors.New("MEILI_HOST is required to reindex")
	}
	n, err := container.Search().ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	logger.Info().Int("indexed", n).Msg("reindex completed")
	return nil
}
