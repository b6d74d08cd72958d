package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/canvas/internal/app/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server until SIGINT or SIGTERM.

Configuration comes from CANVAS_* environment variables, optionally read
from the --env-file dotenv file. Without CANVAS_DATABASE_URL the server
keeps everything in memory (development only).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	runErr := application.Run(ctx)
	log.Info("shutting down")
	if err := application.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	return runErr
}
