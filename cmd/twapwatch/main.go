// Command twapwatch detects TWAP-style algorithmic execution across spot
// exchanges. It serves reports over HTTP, collects trades into Postgres, and
// exposes one-shot detect, collect and secrets commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/twapwatch/internal/app"
	"github.com/alanyoungcy/twapwatch/internal/config"
)

var (
	configPath string
	modeFlag   string
)

// rootCmd is the base command; without a subcommand it behaves like run.
var rootCmd = &cobra.Command{
	Use:   "twapwatch",
	Short: "Cross-exchange TWAP execution detector",
	Long: `twapwatch pulls recent trades from Binance, Bybit, OKX and Gate, scores
each exchange's flow for steady algorithmic execution, and folds the verdicts
into one report per symbol and window.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// runCmd starts the long-running process in the configured mode.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API server and/or collector",
	Long: `Run twapwatch in the configured mode:
  server   HTTP + WebSocket API
  collect  periodic trade collection and retention
  full     both`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML configuration file (optional)")
	runCmd.Flags().StringVar(&modeFlag, "mode", "", "override the configured mode (server, collect, full)")
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(func(c *config.Config) {
		if modeFlag != "" {
			c.Mode = modeFlag
		}
	})
	if err != nil {
		return err
	}

	logger.Info("twapwatch starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("twapwatch stopped")
	return nil
}

// loadConfig loads, adjusts and validates configuration and installs the
// JSON logger at the configured level.
func loadConfig(adjust func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr so one-shot commands keep stdout for results.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
