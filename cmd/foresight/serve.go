package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forecasting HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialising app: %w", err)
	}
	defer a.Close()

	log.Info("starting foresight server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("foresight server stopped")
	return nil
}
