package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/twapwatch/internal/app"
)

var (
	collectWindow  int
	collectCleanup time.Duration
)

// collectCmd runs one collection pass, and optionally one retention pass.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect trades once into Postgres",
	Long: `Fetch the last --window minutes of trades for every configured symbol
and store them. Requires postgres.enabled.

Examples:
  twapwatch collect
  twapwatch collect --window 120 --cleanup 24h`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().IntVarP(&collectWindow, "window", "w", 0, "window in minutes (default: collector.window_minutes)")
	collectCmd.Flags().DurationVar(&collectCleanup, "cleanup", 0, "also delete trades collected longer ago than this")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(oneShot)
	if err != nil {
		return err
	}
	window := collectWindow
	if window == 0 {
		window = cfg.Collector.WindowMinutes
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counts, err := application.Collect(ctx, window)
	if err != nil {
		return err
	}
	out := map[string]any{"window_minutes": window, "collected": counts}

	if collectCleanup > 0 {
		deleted, err := application.Cleanup(ctx, collectCleanup)
		if err != nil {
			return err
		}
		out["deleted"] = deleted
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
