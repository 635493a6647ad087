package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"binance", "bybit", "okx", "gate"}, cfg.Exchanges.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Detector.CacheTTL.Duration)
	assert.True(t, cfg.NeedsServer())
	assert.False(t, cfg.NeedsCollector())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twapwatch.toml")
	body := `
mode = "server"
log_level = "debug"

[exchanges]
enabled = ["okx", "binance"]

[exchanges.okx]
base_url = "http://okx.local"
timeout = "3s"

[detector]
symbols = ["BTCUSDT"]
cache_ttl = "90s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("TWAPWATCH_SERVER_PORT", "9100")
	t.Setenv("TWAPWATCH_DETECTOR_SYMBOLS", "ethusdt, solusdt ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"okx", "binance"}, cfg.Exchanges.Enabled)
	assert.Equal(t, "http://okx.local", cfg.Exchanges.OKX.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Exchanges.OKX.Timeout.Duration)
	// Untouched exchange keeps its default.
	assert.Equal(t, "https://api.binance.com", cfg.Exchanges.Binance.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Detector.CacheTTL.Duration)
	assert.Equal(t, []string{"ethusdt", "solusdt"}, cfg.Detector.Symbols)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[detector]\nwindow = 5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector.window")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.LogLevel = "loud"
	cfg.Exchanges.Enabled = []string{"binance", "kraken", "binance"}
	cfg.Detector.AlertMinScore = 1.5
	cfg.Collector.CleanupCron = "* *"
	cfg.Collector.Archive = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown log_level "loud"`,
		`unknown exchange "kraken"`,
		`"binance" listed twice`,
		"alert_min_score",
		`requires postgres.enabled`,
		"cleanup_cron",
		"archive requires s3.enabled",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateModes(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"server", false},
		{"collect", true}, // postgres disabled by default
		{"full", true},
		{"trade", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := Defaults()
			cfg.Mode = tt.mode
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	cfg := Defaults()
	cfg.Mode = "collect"
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestExchangesFor(t *testing.T) {
	cfg := Defaults()
	ex, ok := cfg.Exchanges.For("OKX")
	require.True(t, ok)
	assert.Equal(t, "https://www.okx.com", ex.BaseURL)

	_, ok = cfg.Exchanges.For("kraken")
	assert.False(t, ok)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tg"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)

	// Original untouched, slices not aliased.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
	out.Detector.Symbols[0] = "X"
	assert.Equal(t, "BTCUSDT", cfg.Detector.Symbols[0])
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("../../config.example.toml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 8.0, cfg.Exchanges.OKX.RPS)
	assert.Equal(t, "https://www.okx.com", cfg.Exchanges.OKX.BaseURL)
	assert.True(t, cfg.Collector.Archive)
	assert.Equal(t, 5*time.Minute, cfg.Detector.ReportInterval.Duration)
}
