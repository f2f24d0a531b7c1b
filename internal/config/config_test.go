package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Vetting.TTL)
	assert.Len(t, cfg.Providers, 2)
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
store:
  driver: sqlite
  sqlite_path: /var/lib/vetting/vetting.db
vetting:
  ttl: 2m
  watchlist:
    - So11111111111111111111111111111111111111112
providers:
  - name: dex
    kind: dexscreener
    base_url: http://localhost:9999
    chain: solana
    timeout: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/vetting/vetting.db", cfg.Store.SQLitePath)
	assert.Equal(t, 2*time.Minute, cfg.Vetting.TTL)
	assert.Equal(t, 5*time.Second, cfg.Vetting.CheckTimeout, "untouched field keeps its default")
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, time.Second, cfg.Providers[0].Timeout)

	tokens, err := cfg.WatchlistTokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"STORE_DRIVER":       "postgres",
		"POSTGRES_DSN":       "postgres://u:p@db:5432/vetting",
		"CLICKHOUSE_DSN":     "clickhouse://ch:9000/default",
		"API_TOKENS":         "alpha, beta,,",
		"WS_ALLOWED_ORIGINS": "https://dash.example",
		"LOG_LEVEL":          "debug",
		"VERDICT_TTL":        "90s",
		"REDIS_DB":           "3",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/vetting", cfg.Store.PostgresDSN)
	assert.Equal(t, "clickhouse://ch:9000/default", cfg.Analytics.ClickhouseDSN)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.APITokens)
	assert.Equal(t, []string{"https://dash.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Vetting.TTL)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{"VERDICT_TTL": "soon"})))

	cfg = Default()
	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{"REDIS_DB": "zero"})))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }},
		{"redis without addr", func(c *Config) { c.Store.Driver = DriverRedis }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.SQLitePath = "" }},
		{"zero ttl", func(c *Config) { c.Vetting.TTL = 0 }},
		{"negative check timeout", func(c *Config) { c.Vetting.CheckTimeout = -time.Second }},
		{"confidence above one", func(c *Config) { c.Vetting.ConfidenceThreshold = 1.5 }},
		{"zero confidence", func(c *Config) { c.Vetting.ConfidenceThreshold = 0 }},
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"bad provider", func(c *Config) { c.Providers[0].Kind = "coingecko" }},
		{"bad watchlist token", func(c *Config) { c.Vetting.Watchlist = []string{"not-a-mint"} }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOKEN_VETTING_TEST_VAR=from-dotenv\n"), 0o600))
	t.Setenv("TOKEN_VETTING_TEST_VAR", "")
	os.Unsetenv("TOKEN_VETTING_TEST_VAR")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("TOKEN_VETTING_TEST_VAR"))
}

func TestNewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = LogConfig{Level: "nope"}.NewLogger()
	assert.Error(t, err)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Vetting.TTL)
	assert.Len(t, cfg.Providers, 2)

	tokens, err := cfg.WatchlistTokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}
