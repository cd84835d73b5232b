package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magneticlabs/surfbench/internal/config"
	"github.com/magneticlabs/surfbench/internal/driver"
	"github.com/magneticlabs/surfbench/internal/store"
	"github.com/magneticlabs/surfbench/internal/stream"
	"github.com/magneticlabs/surfbench/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var configPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session/run backend (REST + WebSocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				settings.Port = port
			}

			return runServe(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	return cmd
}

func runServe(ctx context.Context, settings config.Settings) error {
	logger := slog.Default()

	s, err := store.Open(settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}

	mgr := stream.NewManager(logger)
	drv := driver.New(s, mgr, logger)
	handler := stream.NewHandler(mgr, drv, s, logger,
		stream.WithIdleTimeout(settings.IdleTimeout()),
		stream.WithWorkspaceRoot(settings.WorkspaceRoot),
	)

	srv, err := webserver.New(webserver.Config{
		Port:           settings.Port,
		Store:          s,
		StreamHandler:  handler,
		AllowedOrigins: settings.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("surfbench backend: http://localhost:%d\n", settings.Port)
	return srv.ListenAndServe(ctx)
}
