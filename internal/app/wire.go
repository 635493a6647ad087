package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	s3blob "github.com/alanyoungcy/twapwatch/internal/blob/s3"
	"github.com/alanyoungcy/twapwatch/internal/cache/memory"
	"github.com/alanyoungcy/twapwatch/internal/cache/redis"
	"github.com/alanyoungcy/twapwatch/internal/config"
	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/metrics"
	"github.com/alanyoungcy/twapwatch/internal/notify"
	"github.com/alanyoungcy/twapwatch/internal/platform/binance"
	"github.com/alanyoungcy/twapwatch/internal/platform/bybit"
	"github.com/alanyoungcy/twapwatch/internal/platform/gate"
	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
	"github.com/alanyoungcy/twapwatch/internal/platform/okx"
	"github.com/alanyoungcy/twapwatch/internal/secrets"
	"github.com/alanyoungcy/twapwatch/internal/server/handler"
	"github.com/alanyoungcy/twapwatch/internal/store/postgres"
)

// SecretsPasswordEnv names the variable holding the secrets bundle password.
const SecretsPasswordEnv = "TWAPWATCH_SECRETS_PASSWORD"

// Dependencies bundles every concrete dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// TradeStore and the blob fields are nil when their backend is disabled.
type Dependencies struct {
	Clients []domain.ExchangeClient

	TradeStore domain.TradeStore

	ReportCache domain.ReportCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Backends are the network services the health check pings.
	Backends map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := applySecrets(cfg); err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	deps := &Dependencies{
		Metrics:  metrics.New(),
		Backends: make(map[string]handler.Pinger),
	}

	clients, err := BuildClients(cfg, deps.Metrics, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Clients = clients

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
		deps.Backends["postgres"] = pgClient
	}

	// --- Redis, or in-process fallbacks for a single instance ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Backends["redis"] = redisClient
		deps.ReportCache = redis.NewReportCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewReportBus(redisClient)
	} else {
		deps.ReportCache = memory.NewReportCache(nil)
		deps.RateLimiter = memory.NewRateLimiter(nil)
		deps.LockManager = memory.NewLockManager(nil)
		deps.SignalBus = memory.NewBus()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		var trades s3blob.TradeSource
		if deps.TradeStore != nil {
			trades = deps.TradeStore
		}
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, trades, logger)
	}

	deps.Notifier = notify.NewNotifier(BuildSenders(cfg.Notify), cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// BuildClients creates one exchange client per enabled exchange, in
// configuration order, each with its own rate limiter and breaker.
func BuildClients(cfg *config.Config, obs httpx.Observer, logger *slog.Logger) ([]domain.ExchangeClient, error) {
	retry := httpx.DefaultRetryPolicy()
	if r := cfg.Exchanges.Retry; r.MaxAttempts > 0 {
		retry.MaxAttempts = r.MaxAttempts
		retry.BaseBackoff = r.BaseBackoff.Duration
		retry.MaxBackoff = r.MaxBackoff.Duration
	}

	clients := make([]domain.ExchangeClient, 0, len(cfg.Exchanges.Enabled))
	for _, raw := range cfg.Exchanges.Enabled {
		name := strings.ToLower(strings.TrimSpace(raw))
		ex, ok := cfg.Exchanges.For(name)
		if !ok {
			return nil, fmt.Errorf("unknown exchange %q", raw)
		}

		hcfg := httpx.Config{
			BaseURL:  ex.BaseURL,
			Timeout:  ex.Timeout.Duration,
			RPS:      ex.RPS,
			Burst:    ex.Burst,
			Retry:    retry,
			Observer: obs,
		}
		switch name {
		case config.ExchangeBinance:
			hcfg.Name = binance.Name
			clients = append(clients, binance.NewClient(httpx.New(hcfg), logger))
		case config.ExchangeBybit:
			hcfg.Name = bybit.Name
			clients = append(clients, bybit.NewClient(httpx.New(hcfg), logger))
		case config.ExchangeOKX:
			hcfg.Name = okx.Name
			clients = append(clients, okx.NewClient(httpx.New(hcfg), logger))
		case config.ExchangeGate:
			hcfg.Name = gate.Name
			clients = append(clients, gate.NewClient(httpx.New(hcfg), logger))
		}
	}
	return clients, nil
}

// BuildSenders returns a sender for every configured channel.
func BuildSenders(n config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if n.TelegramToken != "" && n.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(n.TelegramToken, n.TelegramChatID))
	}
	if n.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(n.DiscordWebhookURL))
	}
	if n.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(n.WebhookURL, n.WebhookSecret))
	}
	return senders
}

// applySecrets overlays the encrypted bundle at notify.secrets_path onto cfg.
// Bundle values win over plaintext configuration.
func applySecrets(cfg *config.Config) error {
	path := cfg.Notify.SecretsPath
	if path == "" {
		return nil
	}
	password := os.Getenv(SecretsPasswordEnv)
	if password == "" {
		return fmt.Errorf("secrets: %s is required when notify.secrets_path is set", SecretsPasswordEnv)
	}
	b, err := secrets.LoadBundle(path, password)
	if err != nil {
		return err
	}
	overlay(&cfg.Notify.TelegramToken, b.TelegramToken)
	overlay(&cfg.Notify.DiscordWebhookURL, b.DiscordWebhookURL)
	overlay(&cfg.Notify.WebhookSecret, b.WebhookSecret)
	overlay(&cfg.Server.APIKey, b.APIKey)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
