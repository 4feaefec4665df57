package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/pthm/snapoff/lib/config"
	"github.com/pthm/snapoff/lib/logging"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"

	cfgFile  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "snapoff",
		Short: "Server-driven UI components over HTMX",
		Long: `snapoff renders self-contained components (view, style, state handler)
on the server and keeps their state per session. Browsers post events back
with HTMX and receive re-rendered fragments; realtime fragments are pushed
over a websocket.

Examples:
  snapoff serve                       Serve the demo page on :3000
  snapoff serve --config snapoff.yaml Serve with a config file
  snapoff lab                         Browse and preview components`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(), newLabCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snapoff %s\n", versionString())
		},
	}
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// loadConfig reads the config and builds the process logger from it.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func execute() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
