package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/flock/config"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every subcommand runs after logging is
// set up and the global config is loaded from --config.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flock",
		Short: "3D boids flocking simulation",
		Long: `flock simulates a flock of boids in a wrap-around box. Each boid steers
by alignment, cohesion and separation with its neighbors.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			if err := setupLogging(level); err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			if err := config.Init(path); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// setupLogging installs a JSON slog handler on stdout.
func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.Cfg()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flock version %s\n", version)
		},
	}
}
