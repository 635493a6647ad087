package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies .env and
// TWAPWATCH_* environment overrides. An empty path skips the file. The result
// is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose TWAPWATCH_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Exchanges ──
	setStringSlice(&cfg.Exchanges.Enabled, "TWAPWATCH_EXCHANGES_ENABLED")
	for name, ex := range map[string]*ExchangeConfig{
		"BINANCE": &cfg.Exchanges.Binance,
		"BYBIT":   &cfg.Exchanges.Bybit,
		"OKX":     &cfg.Exchanges.OKX,
		"GATE":    &cfg.Exchanges.Gate,
	} {
		prefix := "TWAPWATCH_EXCHANGES_" + name + "_"
		setStr(&ex.BaseURL, prefix+"BASE_URL")
		setFloat64(&ex.RPS, prefix+"RPS")
		setInt(&ex.Burst, prefix+"BURST")
		setDuration(&ex.Timeout, prefix+"TIMEOUT")
	}
	setInt(&cfg.Exchanges.Retry.MaxAttempts, "TWAPWATCH_EXCHANGES_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Exchanges.Retry.BaseBackoff, "TWAPWATCH_EXCHANGES_RETRY_BASE_BACKOFF")
	setDuration(&cfg.Exchanges.Retry.MaxBackoff, "TWAPWATCH_EXCHANGES_RETRY_MAX_BACKOFF")

	// ── Detector ──
	setStringSlice(&cfg.Detector.Symbols, "TWAPWATCH_DETECTOR_SYMBOLS")
	setInt(&cfg.Detector.DefaultWindowMinutes, "TWAPWATCH_DETECTOR_DEFAULT_WINDOW_MINUTES")
	setDuration(&cfg.Detector.CallTimeout, "TWAPWATCH_DETECTOR_CALL_TIMEOUT")
	setDuration(&cfg.Detector.Deadline, "TWAPWATCH_DETECTOR_DEADLINE")
	setDuration(&cfg.Detector.CacheTTL, "TWAPWATCH_DETECTOR_CACHE_TTL")
	setFloat64(&cfg.Detector.AlertMinScore, "TWAPWATCH_DETECTOR_ALERT_MIN_SCORE")
	setDuration(&cfg.Detector.ReportInterval, "TWAPWATCH_DETECTOR_REPORT_INTERVAL")
	setBool(&cfg.Detector.ArchiveReports, "TWAPWATCH_DETECTOR_ARCHIVE_REPORTS")
	setBool(&cfg.Detector.UseStore, "TWAPWATCH_DETECTOR_USE_STORE")

	// ── Collector ──
	setDuration(&cfg.Collector.Interval, "TWAPWATCH_COLLECTOR_INTERVAL")
	setInt(&cfg.Collector.WindowMinutes, "TWAPWATCH_COLLECTOR_WINDOW_MINUTES")
	setDuration(&cfg.Collector.Retention, "TWAPWATCH_COLLECTOR_RETENTION")
	setStr(&cfg.Collector.CleanupCron, "TWAPWATCH_COLLECTOR_CLEANUP_CRON")
	setBool(&cfg.Collector.Archive, "TWAPWATCH_COLLECTOR_ARCHIVE")
	setDuration(&cfg.Collector.LockTTL, "TWAPWATCH_COLLECTOR_LOCK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TWAPWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TWAPWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TWAPWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TWAPWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TWAPWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TWAPWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TWAPWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TWAPWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TWAPWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TWAPWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TWAPWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TWAPWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TWAPWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TWAPWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TWAPWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TWAPWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TWAPWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TWAPWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TWAPWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TWAPWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TWAPWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "TWAPWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TWAPWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TWAPWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TWAPWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TWAPWATCH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "TWAPWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TWAPWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TWAPWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TWAPWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TWAPWATCH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TWAPWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TWAPWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TWAPWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "TWAPWATCH_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "TWAPWATCH_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "TWAPWATCH_NOTIFY_EVENTS")
	setStr(&cfg.Notify.SecretsPath, "TWAPWATCH_NOTIFY_SECRETS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "TWAPWATCH_MODE")
	setStr(&cfg.LogLevel, "TWAPWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
