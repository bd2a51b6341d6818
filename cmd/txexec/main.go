// Command txexec submits contract calls through a throttled, nonce-safe
// transaction executor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/altuslabsxyz/txexec/internal/config"
	"github.com/altuslabsxyz/txexec/internal/version"
)

// Flag variables for CLI overrides
var (
	flagConfigPath string
	flagDataDir    string
	flagLogLevel   string
	flagRPC        string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "txexec",
		Short:         "Throttled contract transaction executor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaults := config.DefaultConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "Config file path (default: ~/.txexec/"+config.ConfigFileName+")")
	pf.StringVar(&flagDataDir, "data-dir", "", fmt.Sprintf("Data directory (default: %s)", config.DefaultDataDir()))
	pf.StringVar(&flagLogLevel, "log-level", "", fmt.Sprintf("Log level: debug, info, warn, error (default: %s)", defaults.Log.Level))
	pf.StringVar(&flagRPC, "rpc", "", fmt.Sprintf("JSON-RPC endpoint (default: %s)", defaults.RPC.Endpoint))

	rootCmd.AddCommand(
		newSendCmd(),
		newResumeCmd(),
		newPendingCmd(),
		newConfigCmd(),
		version.NewCmd("txexec"),
	)
	return rootCmd
}

// loadConfig resolves defaults < file < env < flags and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dataDir := config.DefaultDataDir()
	if flagDataDir != "" {
		dataDir = flagDataDir
	}

	cfg, err := config.NewLoader(dataDir, flagConfigPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyFlagOverrides(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides applies CLI flags to config (highest priority).
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if cmd.Flags().Changed("rpc") {
		cfg.RPC.Endpoint = flagRPC
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
