package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/config"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/history"
	"github.com/shaneisley/courtside/pkg/pool"
	"github.com/shaneisley/courtside/pkg/transport"
	"github.com/shaneisley/courtside/pkg/ui"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatRaw   = "raw"
)

// argFlags are the operation arguments shared by fetch and key.
type argFlags struct {
	season     string
	seasonType string
	playerID   string
	gameID     string
	params     []string
}

func (f *argFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.season, "season", "", "Season, e.g. 2023-24")
	cmd.Flags().StringVar(&f.seasonType, "season-type", "", "Season type, e.g. \"Regular Season\" or Playoffs")
	cmd.Flags().StringVar(&f.playerID, "player-id", "", "Player id")
	cmd.Flags().StringVar(&f.gameID, "game-id", "", "Game id, e.g. 0022300001")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "Extra upstream parameter as key=value (repeatable)")
}

// args converts the flags into operation arguments. Unset flags are left
// out so the operation template keeps its defaults.
func (f *argFlags) args() (endpoints.Args, error) {
	args := endpoints.Args{}
	set := func(name, value string) {
		if value != "" {
			args[name] = value
		}
	}
	set(endpoints.ArgSeason, f.season)
	set(endpoints.ArgSeasonType, f.seasonType)
	set(endpoints.ArgPlayerID, f.playerID)
	set(endpoints.ArgGameID, f.gameID)

	for _, p := range f.params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		args[strings.TrimSpace(name)] = value
	}
	return args, nil
}

func (a *app) fetchCommand() *cobra.Command {
	var (
		flags   argFlags
		format  string
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "fetch OPERATION",
		Short: "Fetch one named operation",
		Long: `Fetch one named operation and print its result sets. The response is served
from cache when a fresh copy exists. Run 'courtside endpoints' for the list of operations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opArgs, err := flags.args()
			if err != nil {
				return err
			}

			s, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := a.newClient(s, 0)
			if err != nil {
				return err
			}

			result, err := c.Fetch(cmd.Context(), args[0], opArgs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				encoded, err := json.MarshalIndent(result.Payload, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode payload: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
			case formatRaw:
				fmt.Fprintln(out, string(result.Body))
			default:
				fmt.Fprintln(out, ui.RenderPayload(result.Payload, maxRows))
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, json or raw")
	cmd.Flags().IntVar(&maxRows, "max-rows", 25, "Rows shown per result set in table format (0 = all)")
	return cmd
}

func (a *app) warmCommand() *cobra.Command {
	var (
		seasons    []string
		seasonType string
		params     []string
	)

	cmd := &cobra.Command{
		Use:   "warm OPERATION --seasons a,b,c",
		Short: "Fetch an operation for several seasons across a worker pool",
		Long: `Warm the cache by fetching one operation for each listed season. Each worker
owns its own rate limiter; all workers share the cache. Failed seasons are
reported and the batch continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(seasons) == 0 {
				return errors.New("at least one season is required (--seasons)")
			}

			base := argFlags{seasonType: seasonType, params: params}
			common, err := base.args()
			if err != nil {
				return err
			}

			jobs := make([]pool.Job, 0, len(seasons))
			for _, season := range seasons {
				jobArgs := endpoints.Args{endpoints.ArgSeason: strings.TrimSpace(season)}
				for k, v := range common {
					jobArgs[k] = v
				}
				jobs = append(jobs, pool.Job{Operation: args[0], Args: jobArgs})
			}

			s, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := pool.New(a.cfg.Workers, a.factory(s), a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			outcomes := p.Run(cmd.Context(), jobs)

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			a.reporter.BatchSummary(len(jobs), failed, p.Stats(), time.Since(start))

			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&seasons, "seasons", nil, "Comma-separated seasons, e.g. 2022-23,2023-24")
	cmd.Flags().StringVar(&seasonType, "season-type", "", "Season type, e.g. Playoffs")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Extra upstream parameter as key=value (repeatable)")
	return cmd
}

func (a *app) endpointsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "endpoints",
		Aliases: []string{"ops"},
		Short:   "List the named operations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderOperations(endpoints.Default()))
			return nil
		},
	}
}

func (a *app) keyCommand() *cobra.Command {
	var flags argFlags

	cmd := &cobra.Command{
		Use:   "key OPERATION",
		Short: "Print the cache key and upstream URL of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opArgs, err := flags.args()
			if err != nil {
				return err
			}

			req, err := endpoints.Default().Render(args[0], opArgs)
			if err != nil {
				return err
			}

			t := transport.New(transport.Config{BaseURL: a.cfg.BaseURL, Timeout: a.cfg.Timeout})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key: %s\n", cache.Key(req.Endpoint(), req.Params()))
			fmt.Fprintf(out, "url: %s\n", t.URL(req))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func (a *app) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the file cache",
	}

	fileCache := func() (*cache.FileCache, error) {
		if a.cfg.CacheBackend != config.BackendFile {
			return nil, fmt.Errorf("cache maintenance is only available for the file backend (configured: %s)", a.cfg.CacheBackend)
		}
		return cache.NewFileCache(a.cfg.CacheDir, a.cfg.CacheTTL, nil)
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := fileCache()
			if err != nil {
				return err
			}
			st, err := fc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderCacheStats(fc.Dir(), fc.TTL(), st))
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete stale cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := fileCache()
			if err != nil {
				return err
			}
			removed, err := fc.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale entries from %s\n", removed, fc.Dir())
			return nil
		},
	}

	cmd.AddCommand(stats, prune)
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	var (
		limit   int
		since   time.Duration
		summary bool
		format  string
	)

	openHistory := func() (*history.Database, error) {
		if a.cfg.HistoryPath == "" {
			return nil, errors.New("fetch history is disabled (history_path is empty)")
		}
		return history.Open(a.cfg.HistoryPath)
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent fetches or per-endpoint summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if summary {
				s, err := db.Summary(cmd.Context(), time.Now().Add(-since))
				if err != nil {
					return err
				}
				if format == formatJSON {
					return json.NewEncoder(out).Encode(s)
				}
				fmt.Fprintln(out, ui.RenderSummary(s))
				return nil
			}

			records, err := db.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return json.NewEncoder(out).Encode(records)
			}
			fmt.Fprintln(out, ui.RenderHistory(records))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent fetches to show")
	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "Summary window")
	cmd.Flags().BoolVar(&summary, "summary", false, "Show per-endpoint aggregates instead of recent fetches")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table or json")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete history older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := db.Purge(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d history records\n", removed)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of records to delete")

	cmd.AddCommand(purge)
	return cmd
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.debugInfo == nil {
				return errors.New("configuration debug info unavailable")
			}
			a.debugInfo.PrintDebugInfo(cmd.OutOrStdout())
			return nil
		},
	}
}
