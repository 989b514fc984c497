package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaneisley/courtside/pkg/backoff"
	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/client"
	"github.com/shaneisley/courtside/pkg/logging"
	"github.com/shaneisley/courtside/pkg/pool"
	"github.com/shaneisley/courtside/pkg/ratelimit"
	"github.com/shaneisley/courtside/pkg/retry"
	"github.com/shaneisley/courtside/pkg/transport"
)

// EnvPrefix prefixes every environment variable, e.g. COURTSIDE_CACHE_DIR.
const EnvPrefix = "COURTSIDE"

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// DefaultHistoryPath is where fetch history is kept unless configured.
const DefaultHistoryPath = ".courtside/history.db"

// Config holds the configuration for the courtside CLI
type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	CacheBackend       string        `mapstructure:"cache_backend"`
	CacheDir           string        `mapstructure:"cache_dir"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	RedisPassword      string        `mapstructure:"redis_password"`
	RedisDB            int           `mapstructure:"redis_db"`
	RedisPrefix        string        `mapstructure:"redis_prefix"`
	MinInterval        time.Duration `mapstructure:"min_interval"`
	MaxJitter          time.Duration `mapstructure:"max_jitter"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	RetryJitter        time.Duration `mapstructure:"retry_jitter"`
	MaxRetryAfter      time.Duration `mapstructure:"max_retry_after"`
	RateLimitThreshold int           `mapstructure:"rate_limit_threshold"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	Workers            int           `mapstructure:"workers"`
	HistoryPath        string        `mapstructure:"history_path"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
}

// Keys lists every configuration key in display order.
var Keys = []string{
	"base_url", "cache_backend", "cache_dir", "cache_ttl",
	"redis_addr", "redis_password", "redis_db", "redis_prefix",
	"min_interval", "max_jitter", "timeout",
	"max_attempts", "retry_base_delay", "retry_max_delay", "retry_jitter", "max_retry_after",
	"rate_limit_threshold", "failure_threshold", "workers",
	"history_path", "log_level", "log_format",
}

var defaults = map[string]any{
	"base_url":             transport.DefaultBaseURL,
	"cache_backend":        BackendFile,
	"cache_dir":            client.DefaultCacheDir,
	"cache_ttl":            cache.DefaultTTL,
	"redis_addr":           "",
	"redis_password":       "",
	"redis_db":             0,
	"redis_prefix":         "",
	"min_interval":         ratelimit.DefaultMinInterval,
	"max_jitter":           ratelimit.DefaultMaxJitter,
	"timeout":              transport.DefaultTimeout,
	"max_attempts":         retry.DefaultMaxAttempts,
	"retry_base_delay":     backoff.DefaultBaseDelay,
	"retry_max_delay":      backoff.DefaultMaxDelay,
	"retry_jitter":         backoff.DefaultJitter,
	"max_retry_after":      retry.DefaultMaxRetryAfter,
	"rate_limit_threshold": ratelimit.DefaultRateLimitThreshold,
	"failure_threshold":    ratelimit.DefaultFailureThreshold,
	"workers":              pool.DefaultWorkers,
	"history_path":         DefaultHistoryPath,
	"log_level":            string(logging.LogLevelWarn),
	"log_format":           string(logging.FormatText),
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// ConfigSource represents where a configuration value came from
type ConfigSource int

const (
	SourceDefault ConfigSource = iota
	SourceConfigFile
	SourceEnvironment
	SourceCLIFlag
)

func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceConfigFile:
		return "config file"
	case SourceEnvironment:
		return "environment variable"
	case SourceCLIFlag:
		return "CLI flag"
	default:
		return "unknown"
	}
}

// ConfigDebugInfo holds debugging information about configuration resolution
type ConfigDebugInfo struct {
	File    string
	Sources map[string]ConfigSource
	Values  map[string]interface{}
}

// EnvVar returns the environment variable bound to key
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// LoadWithDefaults returns a configuration with default values
func LoadWithDefaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// LoadFromFile loads configuration from a TOML or YAML file on top of the defaults
func LoadFromFile(configFile string) (*Config, error) {
	config, _, err := Load(configFile, nil, false)
	return config, err
}

// Load resolves configuration with precedence flags > environment > config
// file > defaults. overrides holds only the flags the user set explicitly,
// keyed by configuration key. Debug info is returned only when debug is set.
func Load(configFile string, overrides map[string]any, debug bool) (*Config, *ConfigDebugInfo, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(configType(configFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range Keys {
		_ = v.BindEnv(key, EnvVar(key))
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var debugInfo *ConfigDebugInfo
	if debug {
		debugInfo = resolveSources(v, configFile, overrides)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, debugInfo, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, debugInfo, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, debugInfo, nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// resolveSources records, for every key, the highest-precedence layer that set it
func resolveSources(v *viper.Viper, configFile string, overrides map[string]any) *ConfigDebugInfo {
	info := &ConfigDebugInfo{
		File:    configFile,
		Sources: make(map[string]ConfigSource, len(Keys)),
		Values:  make(map[string]interface{}, len(Keys)),
	}

	for _, key := range Keys {
		source := SourceDefault
		if _, ok := overrides[key]; ok {
			source = SourceCLIFlag
		} else if value, ok := os.LookupEnv(EnvVar(key)); ok && value != "" {
			source = SourceEnvironment
		} else if configFile != "" && v.InConfig(key) {
			source = SourceConfigFile
		}
		info.Sources[key] = source
		info.Values[key] = v.Get(key)
	}

	return info
}

// FindConfigFile searches for a configuration file in the given directory
// It looks for .courtside.toml, courtside.toml, .courtside.yaml, courtside.yaml files
func FindConfigFile(dir string) string {
	configNames := []string{".courtside.toml", "courtside.toml", ".courtside.yaml", "courtside.yaml"}

	for _, name := range configNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errors []ValidationError
	add := func(field string, value interface{}, message string) {
		errors = append(errors, ValidationError{Field: field, Value: value, Message: message})
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("base_url", c.BaseURL, "must be an absolute http or https URL")
	}

	switch c.CacheBackend {
	case BackendFile:
		if strings.TrimSpace(c.CacheDir) == "" {
			add("cache_dir", c.CacheDir, "must be set for the file cache backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			add("redis_addr", c.RedisAddr, "must be set for the redis cache backend")
		}
	default:
		add("cache_backend", c.CacheBackend, "must be 'file' or 'redis'")
	}
	if c.RedisDB < 0 {
		add("redis_db", c.RedisDB, "must be non-negative")
	}

	if c.CacheTTL <= 0 {
		add("cache_ttl", c.CacheTTL, "must be greater than 0")
	}

	if c.MinInterval < 0 {
		add("min_interval", c.MinInterval, "must be non-negative")
	}
	if c.MaxJitter < 0 {
		add("max_jitter", c.MaxJitter, "must be non-negative")
	}

	if c.Timeout <= 0 {
		add("timeout", c.Timeout, "must be greater than 0")
	}
	if c.Timeout > 10*time.Minute {
		add("timeout", c.Timeout, "must be 10 minutes or less")
	}

	if c.MaxAttempts <= 0 {
		add("max_attempts", c.MaxAttempts, "must be greater than 0")
	}
	if c.MaxAttempts > retry.MaxAttemptsLimit {
		add("max_attempts", c.MaxAttempts, fmt.Sprintf("must be %d or less to prevent excessive resource usage", retry.MaxAttemptsLimit))
	}

	if c.RetryBaseDelay < 0 {
		add("retry_base_delay", c.RetryBaseDelay, "must be non-negative")
	}
	if c.RetryMaxDelay < 0 {
		add("retry_max_delay", c.RetryMaxDelay, "must be non-negative (0 means no limit)")
	}
	if c.RetryMaxDelay > 0 && c.RetryBaseDelay > 0 && c.RetryMaxDelay < c.RetryBaseDelay {
		add("retry_max_delay", c.RetryMaxDelay, "must be greater than or equal to base delay")
	}
	if c.RetryJitter < 0 {
		add("retry_jitter", c.RetryJitter, "must be non-negative")
	}
	if c.MaxRetryAfter < 0 {
		add("max_retry_after", c.MaxRetryAfter, "must be non-negative")
	}

	if c.RateLimitThreshold < 1 {
		add("rate_limit_threshold", c.RateLimitThreshold, "must be 1 or greater")
	}
	if c.FailureThreshold < 1 {
		add("failure_threshold", c.FailureThreshold, "must be 1 or greater")
	}

	if c.Workers < 1 || c.Workers > pool.MaxWorkers {
		add("workers", c.Workers, fmt.Sprintf("must be between 1 and %d", pool.MaxWorkers))
	}

	switch logging.LogLevel(strings.ToLower(c.LogLevel)) {
	case logging.LogLevelDebug, logging.LogLevelInfo, logging.LogLevelWarn, logging.LogLevelError:
	default:
		add("log_level", c.LogLevel, "must be one of debug, info, warn, error")
	}
	switch logging.Format(c.LogFormat) {
	case logging.FormatJSON, logging.FormatText:
	default:
		add("log_format", c.LogFormat, "must be 'json' or 'text'")
	}

	// Return combined error if any validation failed
	if len(errors) > 0 {
		var messages []string
		for _, err := range errors {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return nil
}

// LimiterConfig returns the rate limiter settings
func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		MinInterval:        c.MinInterval,
		MaxJitter:          c.MaxJitter,
		RateLimitThreshold: c.RateLimitThreshold,
		FailureThreshold:   c.FailureThreshold,
		MaxEscalation:      ratelimit.DefaultMaxEscalation,
	}
}

// Backoff returns the retry delay strategy
func (c *Config) Backoff() backoff.Strategy {
	exp := backoff.NewExponential(c.RetryBaseDelay, backoff.DefaultMultiplier, c.RetryMaxDelay)
	if c.RetryJitter <= 0 {
		return exp
	}
	return backoff.NewJittered(exp, c.RetryJitter)
}

// RedisConfig returns the Redis cache settings
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
	}
}

// PrintDebugInfo writes configuration debug information
func (debug *ConfigDebugInfo) PrintDebugInfo(w io.Writer) {
	fmt.Fprintln(w, "Configuration Resolution Debug Info:")
	fmt.Fprintln(w, "===================================")
	if debug.File != "" {
		fmt.Fprintf(w, "config file: %s\n", debug.File)
	}

	for _, key := range Keys {
		value := debug.Values[key]
		if key == "redis_password" && value != "" {
			value = "********"
		}
		fmt.Fprintf(w, "%-22s: %-30v (from %s)\n", key, value, debug.Sources[key])
	}
}
