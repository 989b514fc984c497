package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/client"
	"github.com/shaneisley/courtside/pkg/config"
	"github.com/shaneisley/courtside/pkg/history"
	"github.com/shaneisley/courtside/pkg/logging"
	"github.com/shaneisley/courtside/pkg/pool"
	"github.com/shaneisley/courtside/pkg/ratelimit"
	"github.com/shaneisley/courtside/pkg/retry"
	"github.com/shaneisley/courtside/pkg/transport"
	"github.com/shaneisley/courtside/pkg/ui"
)

// overrideFlags are the root flags that map onto configuration keys.
var overrideFlags = []string{
	"base-url", "cache-backend", "cache-dir", "cache-ttl", "redis-addr",
	"min-interval", "max-jitter", "timeout", "max-attempts", "workers",
	"history-path", "log-level", "log-format",
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile  string
	debugConfig bool
	quiet       bool

	cfg       *config.Config
	debugInfo *config.ConfigDebugInfo
	logger    *logging.Logger
	reporter  *ui.Reporter
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "courtside",
		Short: "Cached, rate-limited access to NBA statistics",
		Long: `courtside fetches tabular statistics from the NBA stats API. Every request is
served from a 24h local cache when possible, paced by an adaptive rate limiter
and retried with exponential backoff when the upstream throttles or fails.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (COURTSIDE_*)
3. Configuration file
4. Default values

The tool looks for configuration files in the following order:
1. File specified by --config flag
2. .courtside.toml, courtside.toml, .courtside.yaml, courtside.yaml in the current directory
3. The same names in the home directory

EXAMPLES:
  # Advanced player stats for a season
  courtside fetch league_player_advanced_stats --season 2023-24

  # Warm the cache for several seasons with four workers
  courtside warm league_game_log --seasons 2021-22,2022-23,2023-24 --workers 4

  # Show where every setting comes from
  COURTSIDE_MIN_INTERVAL=2s courtside config`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfiguration(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Configuration file path")
	flags.BoolVar(&a.debugConfig, "debug-config", false, "Show configuration resolution debug information")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress per-attempt progress messages")

	// Typed defaults are zero here; the effective defaults live in pkg/config.
	flags.String("base-url", "", "Upstream base URL (default: "+transport.DefaultBaseURL+")")
	flags.String("cache-backend", "", "Cache backend: file or redis (default: file)")
	flags.String("cache-dir", "", "File cache directory (default: "+client.DefaultCacheDir+")")
	flags.Duration("cache-ttl", 0, "How long cached responses are served (default: 24h)")
	flags.String("redis-addr", "", "Redis address for the redis cache backend")
	flags.Duration("min-interval", 0, "Baseline spacing between requests (default: 1s)")
	flags.Duration("max-jitter", 0, "Random extra spacing per request (default: 500ms)")
	flags.Duration("timeout", 0, "Timeout per attempt (default: 30s)")
	flags.Int("max-attempts", 0, "Maximum attempts per request (default: 10, range: 1-1000)")
	flags.Int("workers", 0, "Workers for batch commands (default: 4)")
	flags.String("history-path", "", "SQLite fetch history path, empty to disable (default: "+config.DefaultHistoryPath+")")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default: warn)")
	flags.String("log-format", "", "Log format: text or json (default: text)")

	rootCmd.AddCommand(
		a.fetchCommand(),
		a.warmCommand(),
		a.endpointsCommand(),
		a.keyCommand(),
		a.cacheCommand(),
		a.historyCommand(),
		a.configCommand(),
	)

	return rootCmd
}

// loadConfiguration loads configuration with full precedence support
func (a *app) loadConfiguration(cmd *cobra.Command) error {
	configPath := a.configFile
	if configPath == "" {
		cwd, _ := os.Getwd()
		if found := config.FindConfigFile(cwd); found != "" {
			configPath = found
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configPath = config.FindConfigFile(homeDir)
		}
	}

	// Only flags set explicitly override lower layers.
	overrides := make(map[string]any)
	for _, name := range overrideFlags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			overrides[strings.ReplaceAll(name, "-", "_")] = f.Value.String()
		}
	}

	debug := a.debugConfig || cmd.Name() == "config"
	cfg, debugInfo, err := config.Load(configPath, overrides, debug)
	if err != nil {
		return err
	}

	if a.debugConfig && debugInfo != nil && cmd.Name() != "config" {
		debugInfo.PrintDebugInfo(a.stderr)
		fmt.Fprintln(a.stderr)
	}

	a.cfg = cfg
	a.debugInfo = debugInfo
	a.logger = logging.New(a.stderr, "courtside", logging.LogLevel(cfg.LogLevel), logging.Format(cfg.LogFormat))
	a.reporter = ui.NewReporter(a.stderr)
	a.reporter.SetQuiet(a.quiet)
	return nil
}

// stack holds the resources shared by every client of one invocation.
type stack struct {
	cache   cache.Cache
	history *history.Database
	closers []func() error
}

func (s *stack) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openStack opens the cache backend and, when configured, the history ledger
func (a *app) openStack(ctx context.Context) (*stack, error) {
	s := &stack{}

	switch a.cfg.CacheBackend {
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, a.cfg.RedisConfig(), a.cfg.CacheTTL, nil)
		if err != nil {
			return nil, err
		}
		s.cache = rc
		s.closers = append(s.closers, rc.Close)
	default:
		fc, err := cache.NewFileCache(a.cfg.CacheDir, a.cfg.CacheTTL, nil)
		if err != nil {
			return nil, err
		}
		s.cache = fc
	}

	if a.cfg.HistoryPath != "" {
		db, err := history.Open(a.cfg.HistoryPath)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.history = db
		s.closers = append(s.closers, db.Close)
	}

	return s, nil
}

// newClient builds one independent client on top of the shared stack
func (a *app) newClient(s *stack, worker int) (*client.Client, error) {
	policy := retry.NewPolicy(nil)
	policy.MaxAttempts = a.cfg.MaxAttempts
	policy.Backoff = a.cfg.Backoff()
	policy.MaxRetryAfter = a.cfg.MaxRetryAfter

	opts := client.Options{
		Cache: s.cache,
		Transport: transport.New(transport.Config{
			BaseURL: a.cfg.BaseURL,
			Timeout: a.cfg.Timeout,
		}),
		Limiter:  ratelimit.New(a.cfg.LimiterConfig(), nil),
		Retry:    policy,
		Logger:   a.logger.WithWorker(worker),
		Observer: a.reporter,
	}
	if s.history != nil {
		opts.Recorder = s.history
	}

	return client.New(opts)
}

// factory adapts newClient for the worker pool
func (a *app) factory(s *stack) pool.Factory {
	return func(worker int) (*client.Client, error) {
		return a.newClient(s, worker)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
