package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"iprompt/internal/config"
	"iprompt/internal/crypto"
	"iprompt/internal/metrics"
	"iprompt/internal/persist"
	"iprompt/internal/prompts"
	"iprompt/internal/ratelimit"
	"iprompt/internal/storage"
	"iprompt/internal/translation"
	"iprompt/internal/worker"
)

// Open builds the application from configuration. The caller must call Start before
// using the store and Close when done.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	m := metrics.Global()
	var closers []func() error
	fail := func(err error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var (
		base   storage.Adapter
		legacy storage.LegacySource
	)
	switch cfg.Storage.Backend {
	case config.BackendFile:
		base = storage.NewFileStore(storage.NewOSBridge(cfg.Storage.DataDir), storage.FileConfig{})
	default:
		sqlStore, err := storage.OpenSQL(ctx, storage.SQLConfig{
			Driver:      cfg.DB.Driver,
			DSN:         cfg.DB.DSN,
			AutoMigrate: cfg.DB.AutoMigrate,
			QuotaBytes:  cfg.Storage.QuotaBytes,
		})
		if err != nil {
			return fail(fmt.Errorf("open sql storage: %w", err))
		}
		closers = append(closers, sqlStore.Close)
		base = sqlStore
		if cfg.Legacy.Source == config.LegacySQL {
			legacy = sqlStore
		}
	}

	var rdb *redis.Client
	if cfg.Legacy.Source == config.LegacyRedis || cfg.Translate.RatePerHour > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, rdb.Close)
		if cfg.Legacy.Source == config.LegacyRedis {
			legacy = storage.NewRedisLegacy(rdb)
		}
	}
	if cfg.Legacy.Source == config.LegacySQL && legacy == nil {
		logger.Warn().Msg("sql legacy source needs the sql backend, legacy migration disabled")
	}

	var sealer *crypto.Manager
	if cfg.Crypto.Enabled() {
		var err error
		sealer, err = crypto.NewManager(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			return fail(fmt.Errorf("init crypto: %w", err))
		}
	}

	adapter := storage.NewBatched(base, storage.BatchConfig{
		Window: cfg.Storage.BatchWindow,
		Logger: logger.With().Str("component", "storage").Logger(),
	})

	trCfg := translation.Config{
		Logger:  logger.With().Str("component", "translation").Logger(),
		Metrics: m,
	}
	if rdb != nil && cfg.Translate.RatePerHour > 0 {
		trCfg.Limiter = ratelimit.NewHourly(rdb, "", cfg.Translate.RatePerHour)
	}
	translator := translation.NewManager(trCfg)
	translator.RegisterProvider(translation.NewChatProvider(translation.ChatConfig{
		HTTPClient:  &http.Client{Timeout: cfg.HTTP.ClientTimeout},
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	}))

	store := prompts.NewStore(prompts.Config{MaxVersions: cfg.VersionLimit})
	persister := persist.New(persist.Config{
		Store:      store,
		Adapter:    adapter,
		Translator: translator,
		Sealer:     sealer,
		Throttle:   cfg.Storage.Throttle,
		Logger:     logger.With().Str("component", "persist").Logger(),
		Metrics:    m,
	})

	a := New(Deps{
		Store:       store,
		Adapter:     adapter,
		Translator:  translator,
		Persister:   persister,
		Legacy:      legacy,
		LegacyKey:   cfg.Legacy.Key,
		SeedSamples: cfg.SeedSamples,
		Logger:      logger,
		Closers:     closers,
	})
	a.Worker = worker.New(worker.Config{
		Source:      store,
		Translator:  a,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger.With().Str("component", "worker").Logger(),
		Metrics:     m,
	})
	return a, nil
}
