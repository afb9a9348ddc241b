// Package cli implements the cg command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ogulcanaydogan/credit-guardian/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

type rootFlags struct {
	cfgFile string
}

// NewRootCommand builds the full cg command tree.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "cg",
		Short: "Credit Guardian - balance, renewal and billing-mail monitoring",
		Long: `Credit Guardian polls provider billing APIs and IMAP mailboxes, raises
webhook alerts when balances run low or subscriptions are due, and serves the
latest results over HTTP, WebSocket and Prometheus metrics.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default: ~/.cg/config.yaml)")

	root.AddCommand(
		newCheckCmd(flags),
		newSubscriptionsCmd(flags),
		newScanCmd(flags),
		newServeCmd(flags),
		newHistoryCmd(flags),
		newProvidersCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and logs anything validation dropped.
func (f *rootFlags) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn("config entry adjusted", "warning", w)
	}
	return cfg, logger, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
