package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sophialabs/stubhttp/internal/app"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stubhttp",
		Short:         "Mock HTTP server driven by expectations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cfg := app.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve expectations defined in YAML files, reloading them on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory for expectation files")
	f.StringVar(&cfg.Host, "host", cfg.Host, "interface to bind")
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	f.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of trace entries to keep")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.DefaultEngine, "default-engine", cfg.DefaultEngine, "default template engine for bodies (expr, jinja2)")
	f.IntVar(&cfg.NoMatchStatus, "no-match-status", cfg.NoMatchStatus, "status returned when no expectation matches")
	f.StringVar(&cfg.ShutdownMode, "shutdown", cfg.ShutdownMode, "shutdown mode (graceful, forced)")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "grace period for in-flight requests")
	f.DurationVar(&cfg.WatcherDebounce, "debounce", cfg.WatcherDebounce, "delay before reloading after a file change")
	f.BoolVar(&cfg.DisableWatcher, "no-watch", cfg.DisableWatcher, "disable hot reload")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "stubhttp", version)
		},
	}
}
