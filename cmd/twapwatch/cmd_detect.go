package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/twapwatch/internal/app"
	"github.com/alanyoungcy/twapwatch/internal/config"
	"github.com/alanyoungcy/twapwatch/internal/notify"
)

var (
	detectWindow int
	detectForce  bool
	detectFormat string
)

// detectCmd builds one report and prints it.
var detectCmd = &cobra.Command{
	Use:   "detect SYMBOL",
	Short: "Build a TWAP report for one symbol",
	Long: `Fetch the last --window minutes of trades for SYMBOL from every enabled
exchange and print the report.

Examples:
  twapwatch detect BTCUSDT
  twapwatch detect ethusdt --window 60 --format text`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().IntVarP(&detectWindow, "window", "w", 0, "window in minutes (default: detector.default_window_minutes)")
	detectCmd.Flags().BoolVar(&detectForce, "force", false, "ignore a cached report")
	detectCmd.Flags().StringVar(&detectFormat, "format", "json", "output format (json|text)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	if detectFormat != "json" && detectFormat != "text" {
		return fmt.Errorf("invalid --format %q (valid: json, text)", detectFormat)
	}
	cfg, logger, err := loadConfig(oneShot)
	if err != nil {
		return err
	}
	window := detectWindow
	if window == 0 {
		window = cfg.Detector.DefaultWindowMinutes
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := application.Detect(ctx, args[0], window, detectForce)
	if err != nil {
		return err
	}

	if detectFormat == "text" {
		fmt.Fprintln(os.Stdout, notify.ReportTitle(report))
		fmt.Fprintln(os.Stdout, notify.FormatReport(report))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// oneShot adapts configuration for commands that exit after one operation:
// the mode only has to pass validation.
func oneShot(c *config.Config) {
	c.Mode = "server"
}

