package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo page, component events and the websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()
			slog.SetDefault(logger.Logger)

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger.Logger)
			if err != nil {
				return err
			}
			defer a.hub.Close()
			go a.sessions.Run(ctx, time.Minute)

			stop, err := a.watch(ctx)
			if err != nil {
				return err
			}
			defer stop()

			return serveHTTP(ctx, "app", cfg.Addr, a.routes(), logger.Logger)
		},
	}
}
