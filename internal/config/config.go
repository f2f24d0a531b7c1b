// Package config loads service configuration from an optional YAML file,
// a .env file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"token-vetting/internal/domain"
	"token-vetting/internal/marketdata"
	"token-vetting/internal/storage"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig                `yaml:"server"`
	Store     StoreConfig                 `yaml:"store"`
	Analytics AnalyticsConfig             `yaml:"analytics"`
	Vetting   VettingConfig               `yaml:"vetting"`
	Providers []marketdata.ProviderConfig `yaml:"providers"`
	Log       LogConfig                   `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	APITokens       []string      `yaml:"api_tokens"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second per client, zero disables
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // extra browser origins for the verdict feed
}

// StoreConfig selects and configures the verdict store.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	HistoryLimit  int    `yaml:"history_limit"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// AnalyticsConfig configures the optional check result log.
type AnalyticsConfig struct {
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // empty disables the log
}

// VettingConfig tunes the engine.
type VettingConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	CheckTimeout        time.Duration `yaml:"check_timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	PolicyFile          string        `yaml:"policy_file"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	Watchlist           []string      `yaml:"watchlist"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration that runs fully in memory against the
// public DexScreener and GoPlus endpoints.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       5,
			RateBurst:       10,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:       DriverMemory,
			HistoryLimit: storage.DefaultHistoryLimit,
			SQLitePath:   "vetting.db",
			RedisPrefix:  "token-vetting:",
		},
		Vetting: VettingConfig{
			TTL:                 10 * time.Minute,
			CheckTimeout:        5 * time.Second,
			ConfidenceThreshold: 0.75,
			RefreshInterval:     5 * time.Minute,
		},
		Providers: []marketdata.ProviderConfig{
			{
				Name:          "dexscreener",
				Kind:          marketdata.KindDexScreener,
				BaseURL:       "https://api.dexscreener.com",
				Chain:         "solana",
				Timeout:       8 * time.Second,
				MaxRetries:    2,
				RatePerSecond: 4,
				Burst:         4,
			},
			{
				Name:          "goplus",
				Kind:          marketdata.KindGoPlus,
				BaseURL:       "https://api.gopluslabs.io",
				Timeout:       8 * time.Second,
				MaxRetries:    1,
				RatePerSecond: 0.5,
				Burst:         2,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadDotEnv loads .env into the environment if the file exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads path (if non-empty) over Default, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PASSWORD", &c.Store.RedisPassword)
	str("CLICKHOUSE_DSN", &c.Analytics.ClickhouseDSN)
	str("LISTEN_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("POLICY_FILE", &c.Vetting.PolicyFile)

	if v, ok := lookup("API_TOKENS"); ok && v != "" {
		c.Server.APITokens = splitList(v)
	}
	if v, ok := lookup("WS_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("WATCHLIST"); ok && v != "" {
		c.Vetting.Watchlist = splitList(v)
	}
	if v, ok := lookup("VERDICT_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VERDICT_TTL: %w", err)
		}
		c.Vetting.TTL = d
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Store.RedisDB = n
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store: postgres driver requires postgres_dsn")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store: sqlite driver requires sqlite_path")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store: redis driver requires redis_addr")
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	if c.Store.HistoryLimit < 0 {
		return errors.New("store: history_limit must not be negative")
	}

	if c.Vetting.TTL <= 0 {
		return errors.New("vetting: ttl must be positive")
	}
	if c.Vetting.CheckTimeout <= 0 {
		return errors.New("vetting: check_timeout must be positive")
	}
	if c.Vetting.ConfidenceThreshold <= 0 || c.Vetting.ConfidenceThreshold > 1 {
		return fmt.Errorf("vetting: confidence_threshold %v outside (0,1]", c.Vetting.ConfidenceThreshold)
	}
	if len(c.Vetting.Watchlist) > 0 && c.Vetting.RefreshInterval <= 0 {
		return errors.New("vetting: refresh_interval must be positive when a watchlist is set")
	}
	if _, err := c.WatchlistTokens(); err != nil {
		return err
	}

	if len(c.Providers) == 0 {
		return errors.New("providers: at least one provider is required")
	}
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers: %w", err)
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server: rate_limit must not be negative")
	}
	return nil
}

// WatchlistTokens parses the refresh watchlist.
func (c Config) WatchlistTokens() ([]domain.TokenID, error) {
	tokens := make([]domain.TokenID, 0, len(c.Vetting.Watchlist))
	for _, raw := range c.Vetting.Watchlist {
		t, err := domain.ParseTokenID(raw)
		if err != nil {
			return nil, fmt.Errorf("vetting: watchlist: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// NewLogger builds the process logger.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
