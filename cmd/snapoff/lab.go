package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newLabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lab",
		Short: "Browse and preview components in isolation",
		Long: `lab serves an index of every component and a preview page per
component. Query parameters on a preview URL become the component's props,
so /component/counter?initialValue=5 renders a counter starting at 5.`,
		Args: cobra.NoArgs,
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

			return serveHTTP(ctx, "lab", cfg.Dev.LabAddr, a.labRoutes(), logger.Logger)
		},
	}
}
