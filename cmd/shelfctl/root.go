package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/app"
	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "shelfctl",
	Short: "Operate the shelfsync catalog",
	Long: `shelfctl runs one-off operations against the shelfsync catalog:
schema migrations, blocking sync passes and sync status inspection.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// loadConfig and newApp are replaced in tests
var (
	loadConfig = config.Load
	newApp     = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return app.New(ctx, cfg, log)
	}
)

// openApp loads configuration and wires the application without starting
// the scheduler
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn("shutdown failed", zap.Error(err))
		}
		_ = a.Logger.Sync()
	}
	return a, closeFn, nil
}
