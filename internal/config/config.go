package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSQL  = "sql"
	BackendFile = "file"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	LegacyNone  = "none"
	LegacySQL   = "sql"
	LegacyRedis = "redis"
)

var (
	ErrInvalidBackend      = errors.New("STORAGE_BACKEND must be 'sql' or 'file'")
	ErrInvalidDriver       = errors.New("DB_DRIVER must be 'sqlite' or 'postgres'")
	ErrInvalidLegacySource = errors.New("LEGACY_SOURCE must be 'none', 'sql' or 'redis'")
	ErrMissingDatabaseDSN  = errors.New("DB_DSN is required for postgres")
)

type Config struct {
	Storage   StorageConfig
	DB        DBConfig
	Legacy    LegacyConfig
	Redis     RedisConfig
	Translate TranslateConfig
	HTTP      HTTPConfig
	Crypto    CryptoConfig
	Worker    WorkerConfig
	Server    ServerConfig
	Log       LogConfig

	SeedSamples  bool
	VersionLimit int
}

type StorageConfig struct {
	Backend     string
	DataDir     string
	QuotaBytes  int64
	BatchWindow time.Duration
	Throttle    time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type LegacyConfig struct {
	Source string
	Key    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TranslateConfig struct {
	RatePerHour int64
}

type HTTPConfig struct {
	ClientTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
}

// CryptoConfig is empty when no master key is configured; API keys are then stored
// as plaintext.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

func (c CryptoConfig) Enabled() bool {
	return len(c.Keys) > 0
}

type WorkerConfig struct {
	Concurrency int
}

type ServerConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
}

type LogConfig struct {
	Level string
}

// Load reads the environment, after applying an optional .env file from the working
// directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := mustEnv("DATA_DIR", defaultDataDir())
	cfg := &Config{
		Storage: StorageConfig{
			Backend:     strings.ToLower(mustEnv("STORAGE_BACKEND", BackendSQL)),
			DataDir:     dataDir,
			QuotaBytes:  mustInt64("STORAGE_QUOTA_BYTES", 5*1024*1024),
			BatchWindow: mustDuration("STORAGE_BATCH_WINDOW", 50*time.Millisecond),
			Throttle:    mustDuration("PERSIST_THROTTLE", time.Second),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", DriverSQLite)),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Legacy: LegacyConfig{
			Source: strings.ToLower(mustEnv("LEGACY_SOURCE", LegacySQL)),
			Key:    mustEnv("LEGACY_KEY", "prompt-storage"),
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
		},
		Translate: TranslateConfig{
			RatePerHour: mustInt64("TRANSLATE_RATE_PER_HOUR", 0),
		},
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 60*time.Second),
			MaxRetries:    mustInt("HTTP_MAX_RETRIES", 0),
			BackoffBase:   mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Worker: WorkerConfig{
			Concurrency: mustInt("WORKER_CONCURRENCY", 2),
		},
		Server: ServerConfig{
			ListenAddr:  mustEnv("HTTP_LISTEN_ADDR", ":8080"),
			HealthPath:  mustEnv("HEALTH_PATH", "/health"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
		SeedSamples:  mustBool("SEED_SAMPLES", true),
		VersionLimit: mustInt("VERSION_LIMIT", 0),
	}

	if cfg.Storage.Backend != BackendSQL && cfg.Storage.Backend != BackendFile {
		return nil, ErrInvalidBackend
	}
	switch cfg.DB.Driver {
	case DriverSQLite, "sqlite3":
		cfg.DB.Driver = DriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = filepath.Join(dataDir, "iprompt.db")
		}
	case DriverPostgres, "pgx", "postgresql":
		cfg.DB.Driver = DriverPostgres
		if cfg.DB.DSN == "" && cfg.Storage.Backend == BackendSQL {
			return nil, ErrMissingDatabaseDSN
		}
	default:
		return nil, ErrInvalidDriver
	}
	if cfg.Legacy.Source != LegacyNone && cfg.Legacy.Source != LegacySQL && cfg.Legacy.Source != LegacyRedis {
		return nil, ErrInvalidLegacySource
	}
	if cfg.VersionLimit < 0 {
		cfg.VersionLimit = 0
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		if len(keys) > 1 {
			return CryptoConfig{}, errors.New("MASTER_KEY_CURRENT_ID is required when several keys are given")
		}
		for id := range keys {
			current = id
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "iprompt")
	}
	return ".iprompt"
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
