package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/courtside/pkg/backoff"
	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/retry"
	"github.com/shaneisley/courtside/pkg/transport"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfig_LoadWithDefaults(t *testing.T) {
	// When loading defaults only
	config := LoadWithDefaults()

	// Then the documented defaults apply
	assert.Equal(t, transport.DefaultBaseURL, config.BaseURL)
	assert.Equal(t, BackendFile, config.CacheBackend)
	assert.Equal(t, ".courtside/cache", config.CacheDir)
	assert.Equal(t, 24*time.Hour, config.CacheTTL)
	assert.Equal(t, time.Second, config.MinInterval)
	assert.Equal(t, 500*time.Millisecond, config.MaxJitter)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 10, config.MaxAttempts)
	assert.Equal(t, 2*time.Second, config.RetryBaseDelay)
	assert.Equal(t, 60*time.Second, config.RetryMaxDelay)
	assert.Equal(t, time.Second, config.RetryJitter)
	assert.Equal(t, retry.DefaultMaxRetryAfter, config.MaxRetryAfter)
	assert.Equal(t, 3, config.RateLimitThreshold)
	assert.Equal(t, 5, config.FailureThreshold)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, DefaultHistoryPath, config.HistoryPath)
	assert.NoError(t, config.Validate())
}

func TestConfig_LoadFromFile(t *testing.T) {
	// Given a TOML configuration file
	configFile := writeConfig(t, "courtside.toml", `
base_url = "http://localhost:8080/stats"
cache_dir = "/tmp/nba-cache"
cache_ttl = "6h"
min_interval = "2s"
max_jitter = "0s"
timeout = "45s"
max_attempts = 5
retry_base_delay = "1s"
retry_max_delay = "30s"
workers = 8
log_level = "debug"
log_format = "json"
`)

	// When loading configuration from file
	config, err := LoadFromFile(configFile)

	// Then file values override the defaults
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/stats", config.BaseURL)
	assert.Equal(t, "/tmp/nba-cache", config.CacheDir)
	assert.Equal(t, 6*time.Hour, config.CacheTTL)
	assert.Equal(t, 2*time.Second, config.MinInterval)
	assert.Zero(t, config.MaxJitter)
	assert.Equal(t, 45*time.Second, config.Timeout)
	assert.Equal(t, 5, config.MaxAttempts)
	assert.Equal(t, time.Second, config.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, config.RetryMaxDelay)
	assert.Equal(t, 8, config.Workers)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "json", config.LogFormat)

	// And unspecified values keep their defaults
	assert.Equal(t, 3, config.RateLimitThreshold)
}

func TestConfig_LoadFromYAMLFile(t *testing.T) {
	configFile := writeConfig(t, ".courtside.yaml", "cache_backend: redis\nredis_addr: localhost:6379\nredis_prefix: \"nba:\"\n")

	config, err := LoadFromFile(configFile)

	require.NoError(t, err)
	assert.Equal(t, BackendRedis, config.CacheBackend)
	assert.Equal(t, cache.RedisConfig{Addr: "localhost:6379", Prefix: "nba:"}, config.RedisConfig())
}

func TestConfig_LoadFromNonExistentFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfig_LoadFromInvalidTOML(t *testing.T) {
	configFile := writeConfig(t, "courtside.toml", "max_attempts = = 5\n")

	_, err := LoadFromFile(configFile)

	assert.Error(t, err)
}

func TestConfig_Precedence(t *testing.T) {
	// Given a file, an environment variable and a flag all setting values
	configFile := writeConfig(t, "courtside.toml", `
max_attempts = 4
workers = 2
timeout = "20s"
`)
	t.Setenv("COURTSIDE_WORKERS", "6")
	t.Setenv("COURTSIDE_TIMEOUT", "25s")

	// When loading with a flag override for timeout
	config, debugInfo, err := Load(configFile, map[string]any{"timeout": 40 * time.Second}, true)

	// Then each value comes from its highest-precedence layer
	require.NoError(t, err)
	assert.Equal(t, 4, config.MaxAttempts)
	assert.Equal(t, 6, config.Workers)
	assert.Equal(t, 40*time.Second, config.Timeout)

	require.NotNil(t, debugInfo)
	assert.Equal(t, SourceConfigFile, debugInfo.Sources["max_attempts"])
	assert.Equal(t, SourceEnvironment, debugInfo.Sources["workers"])
	assert.Equal(t, SourceCLIFlag, debugInfo.Sources["timeout"])
	assert.Equal(t, SourceDefault, debugInfo.Sources["cache_dir"])
}

func TestConfig_LoadWithoutDebug(t *testing.T) {
	config, debugInfo, err := Load("", nil, false)

	require.NoError(t, err)
	assert.Nil(t, debugInfo)
	assert.Equal(t, 10, config.MaxAttempts)
}

func TestConfig_LoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("COURTSIDE_MAX_ATTEMPTS", "0")

	_, _, err := Load("", nil, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "stats.nba.com" }, "base_url"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "memcached" }, "cache_backend"},
		{"redis without address", func(c *Config) { c.CacheBackend = BackendRedis }, "redis_addr"},
		{"empty cache dir", func(c *Config) { c.CacheDir = " " }, "cache_dir"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "cache_ttl"},
		{"negative interval", func(c *Config) { c.MinInterval = -time.Second }, "min_interval"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"huge timeout", func(c *Config) { c.Timeout = time.Hour }, "timeout"},
		{"too many attempts", func(c *Config) { c.MaxAttempts = 5000 }, "max_attempts"},
		{"max below base", func(c *Config) { c.RetryBaseDelay = 10 * time.Second; c.RetryMaxDelay = time.Second }, "retry_max_delay"},
		{"zero threshold", func(c *Config) { c.RateLimitThreshold = 0 }, "rate_limit_threshold"},
		{"too many workers", func(c *Config) { c.Workers = 1000 }, "workers"},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a default config with one bad value
			config := LoadWithDefaults()
			tt.mutate(config)

			// When validating
			err := config.Validate()

			// Then the offending field is named
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid "+tt.field)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	config := LoadWithDefaults()
	config.MaxAttempts = 0
	config.Workers = 0

	err := config.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid max_attempts")
	assert.Contains(t, err.Error(), "invalid workers")
}

func TestConfig_Backoff(t *testing.T) {
	config := LoadWithDefaults()
	config.RetryJitter = 0

	strategy := config.Backoff()

	require.IsType(t, &backoff.Exponential{}, strategy)
	assert.Equal(t, 2*time.Second, strategy.Delay(1))
	assert.Equal(t, 60*time.Second, strategy.Delay(9))

	config.RetryJitter = time.Second
	assert.IsType(t, &backoff.Jittered{}, config.Backoff())
}

func TestConfig_LimiterConfig(t *testing.T) {
	config := LoadWithDefaults()
	config.MinInterval = 3 * time.Second

	lc := config.LimiterConfig()

	assert.Equal(t, 3*time.Second, lc.MinInterval)
	assert.Equal(t, 3, lc.RateLimitThreshold)
	assert.Equal(t, 5, lc.FailureThreshold)
}

func TestConfig_FindConfigFile(t *testing.T) {
	// Given a directory with a YAML and a TOML config
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "courtside.yaml"), []byte("workers: 2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".courtside.toml"), []byte("workers = 2\n"), 0644))

	// When searching
	found := FindConfigFile(dir)

	// Then the TOML file wins
	assert.Equal(t, filepath.Join(dir, ".courtside.toml"), found)
}

func TestConfig_FindConfigFileNotFound(t *testing.T) {
	assert.Empty(t, FindConfigFile(t.TempDir()))
}

func TestConfigDebugInfo_PrintMasksPassword(t *testing.T) {
	t.Setenv("COURTSIDE_REDIS_PASSWORD", "hunter2")
	_, debugInfo, err := Load("", nil, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	debugInfo.PrintDebugInfo(&buf)

	output := buf.String()
	assert.Contains(t, output, "Configuration Resolution Debug Info:")
	assert.Contains(t, output, "max_attempts")
	assert.NotContains(t, output, "hunter2")
	assert.Contains(t, output, "environment variable")
}
