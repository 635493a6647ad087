// Package config defines the twapwatch configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TWAPWATCH_* environment variables.
type Config struct {
	Exchanges ExchangesConfig `toml:"exchanges"`
	Detector  DetectorConfig  `toml:"detector"`
	Collector CollectorConfig `toml:"collector"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// Exchange identifiers accepted in exchanges.enabled.
const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"
	ExchangeOKX     = "okx"
	ExchangeGate    = "gate"
)

// ExchangesConfig selects the exchanges and tunes their transports.
type ExchangesConfig struct {
	// Enabled lists exchanges in the order reports present them.
	Enabled []string       `toml:"enabled"`
	Binance ExchangeConfig `toml:"binance"`
	Bybit   ExchangeConfig `toml:"bybit"`
	OKX     ExchangeConfig `toml:"okx"`
	Gate    ExchangeConfig `toml:"gate"`
	Retry   RetryConfig    `toml:"retry"`
}

// ExchangeConfig tunes one exchange's REST transport.
type ExchangeConfig struct {
	BaseURL string   `toml:"base_url"`
	RPS     float64  `toml:"rps"`
	Burst   int      `toml:"burst"`
	Timeout duration `toml:"timeout"`
}

// RetryConfig is shared by every exchange transport.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseBackoff duration `toml:"base_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
}

// For returns the settings for the named exchange.
func (e ExchangesConfig) For(name string) (ExchangeConfig, bool) {
	switch strings.ToLower(name) {
	case ExchangeBinance:
		return e.Binance, true
	case ExchangeBybit:
		return e.Bybit, true
	case ExchangeOKX:
		return e.OKX, true
	case ExchangeGate:
		return e.Gate, true
	default:
		return ExchangeConfig{}, false
	}
}

// DetectorConfig controls report building and caching.
type DetectorConfig struct {
	Symbols              []string `toml:"symbols"`
	DefaultWindowMinutes int      `toml:"default_window_minutes"`
	CallTimeout          duration `toml:"call_timeout"`
	Deadline             duration `toml:"deadline"`
	CacheTTL             duration `toml:"cache_ttl"`
	AlertMinScore        float64  `toml:"alert_min_score"`
	// ReportInterval drives the warm-up loop; zero disables it.
	ReportInterval duration `toml:"report_interval"`
	ArchiveReports bool     `toml:"archive_reports"`
	// UseStore reads collected trades before calling exchanges.
	UseStore bool `toml:"use_store"`
}

// CollectorConfig controls periodic trade collection and retention.
type CollectorConfig struct {
	Interval      duration `toml:"interval"`
	WindowMinutes int      `toml:"window_minutes"`
	Retention     duration `toml:"retention"`
	CleanupCron   string   `toml:"cleanup_cron"`
	Archive       bool     `toml:"archive"`
	LockTTL       duration `toml:"lock_ttl"`
}

// PostgresConfig holds trade store connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds cache, lock and bus connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds archive storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every /api route.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
	// SecretsPath is an encrypted bundle opened with TWAPWATCH_SECRETS_PASSWORD.
	SecretsPath string `toml:"secrets_path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs the API server against the four public
// exchanges with no external dependencies.
func Defaults() Config {
	retry := RetryConfig{
		MaxAttempts: 4,
		BaseBackoff: duration{500 * time.Millisecond},
		MaxBackoff:  duration{10 * time.Second},
	}
	return Config{
		Exchanges: ExchangesConfig{
			Enabled: []string{ExchangeBinance, ExchangeBybit, ExchangeOKX, ExchangeGate},
			Binance: ExchangeConfig{BaseURL: "https://api.binance.com", RPS: 10, Burst: 5, Timeout: duration{10 * time.Second}},
			Bybit:   ExchangeConfig{BaseURL: "https://api.bybit.com", RPS: 10, Burst: 5, Timeout: duration{10 * time.Second}},
			OKX:     ExchangeConfig{BaseURL: "https://www.okx.com", RPS: 10, Burst: 5, Timeout: duration{10 * time.Second}},
			Gate:    ExchangeConfig{BaseURL: "https://api.gateio.ws", RPS: 10, Burst: 5, Timeout: duration{10 * time.Second}},
			Retry:   retry,
		},
		Detector: DetectorConfig{
			Symbols:              []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"},
			DefaultWindowMinutes: 15,
			CallTimeout:          duration{15 * time.Second},
			Deadline:             duration{30 * time.Second},
			CacheTTL:             duration{5 * time.Minute},
			AlertMinScore:        0.6,
		},
		Collector: CollectorConfig{
			Interval:      duration{time.Hour},
			WindowMinutes: 60,
			Retention:     duration{24 * time.Hour},
			CleanupCron:   "15 * * * *",
			LockTTL:       duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "twapwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "twapwatch",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"twap_detected", "collect_error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"collect": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var knownExchanges = []string{ExchangeBinance, ExchangeBybit, ExchangeOKX, ExchangeGate}

// NeedsCollector reports whether the mode runs the collection loop.
func (c *Config) NeedsCollector() bool {
	m := strings.ToLower(c.Mode)
	return m == "collect" || m == "full"
}

// NeedsServer reports whether the mode serves the HTTP API.
func (c *Config) NeedsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, collect, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchanges
	if len(c.Exchanges.Enabled) == 0 {
		errs = append(errs, "exchanges: enabled must list at least one exchange")
	}
	seen := make(map[string]bool, len(c.Exchanges.Enabled))
	for _, name := range c.Exchanges.Enabled {
		key := strings.ToLower(name)
		if !slices.Contains(knownExchanges, key) {
			errs = append(errs, fmt.Sprintf("exchanges: unknown exchange %q (valid: %s)", name, strings.Join(knownExchanges, ", ")))
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("exchanges: %q listed twice", name))
		}
		seen[key] = true

		ex, _ := c.Exchanges.For(key)
		if strings.TrimSpace(ex.BaseURL) == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: base_url must not be empty", key))
		}
		if ex.RPS < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: rps must not be negative", key))
		}
		if ex.Timeout.Duration < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: timeout must not be negative", key))
		}
	}
	if c.Exchanges.Retry.MaxAttempts < 1 {
		errs = append(errs, "exchanges.retry: max_attempts must be at least 1")
	}
	if c.Exchanges.Retry.BaseBackoff.Duration < 0 || c.Exchanges.Retry.MaxBackoff.Duration < c.Exchanges.Retry.BaseBackoff.Duration {
		errs = append(errs, "exchanges.retry: need 0 <= base_backoff <= max_backoff")
	}

	// Detector
	if len(c.Detector.Symbols) == 0 {
		errs = append(errs, "detector: symbols must not be empty")
	}
	if c.Detector.DefaultWindowMinutes <= 0 {
		errs = append(errs, "detector: default_window_minutes must be positive")
	}
	if c.Detector.CallTimeout.Duration <= 0 {
		errs = append(errs, "detector: call_timeout must be positive")
	}
	if c.Detector.Deadline.Duration <= 0 {
		errs = append(errs, "detector: deadline must be positive")
	}
	if c.Detector.CacheTTL.Duration < 0 {
		errs = append(errs, "detector: cache_ttl must not be negative")
	}
	if c.Detector.AlertMinScore < 0 || c.Detector.AlertMinScore > 1 {
		errs = append(errs, "detector: alert_min_score must be in [0, 1]")
	}
	if c.Detector.ReportInterval.Duration < 0 {
		errs = append(errs, "detector: report_interval must not be negative")
	}
	if c.Detector.UseStore && !c.Postgres.Enabled {
		errs = append(errs, "detector: use_store requires postgres.enabled")
	}
	if c.Detector.ArchiveReports && !c.S3.Enabled {
		errs = append(errs, "detector: archive_reports requires s3.enabled")
	}

	// Collector
	if c.NeedsCollector() {
		if !c.Postgres.Enabled {
			errs = append(errs, fmt.Sprintf("collector: mode %q requires postgres.enabled", c.Mode))
		}
		if c.Collector.Interval.Duration <= 0 {
			errs = append(errs, "collector: interval must be positive")
		}
		if c.Collector.WindowMinutes <= 0 {
			errs = append(errs, "collector: window_minutes must be positive")
		}
		if c.Collector.Retention.Duration <= 0 {
			errs = append(errs, "collector: retention must be positive")
		}
		if err := pipeline.ParseCron(c.Collector.CleanupCron); err != nil {
			errs = append(errs, fmt.Sprintf("collector: cleanup_cron %q: %v", c.Collector.CleanupCron, err))
		}
		if c.Collector.LockTTL.Duration <= 0 {
			errs = append(errs, "collector: lock_ttl must be positive")
		}
	}
	if c.Collector.Archive && !c.S3.Enabled {
		errs = append(errs, "collector: archive requires s3.enabled")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.NeedsServer() && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
