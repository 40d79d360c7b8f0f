package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// errCacheDisabled is returned when the configuration turns the cache off.
var errCacheDisabled = errors.New("the cache is disabled in the configuration")

// NewCacheCmd creates the cache command and its subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
		Long: `Cache works on the backend selected by the configuration (file, memory or redis).

Examples:
  seocrawl cache stats
  seocrawl cache clear --cache-backend redis --redis-addr localhost:6379`,
	}

	cmd.PersistentFlags().String("cache-backend", "", "Cache backend: file, memory or redis")
	cmd.PersistentFlags().String("cache-dir", "", "FileCache directory (default: XDG cache directory)")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address for the redis backend")
	cmd.PersistentFlags().Int("redis-db", 0, "Redis database number")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		Args:  cobra.NoArgs,
		RunE:  runCacheStatsCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE:  runCacheClearCmd,
	})

	return cmd
}

func runCacheStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		return errCacheDisabled
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	cm, err := newCacheManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cm.Close()

	st, err := cm.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Backend:   %s\n", st.Backend)
	fmt.Fprintf(w, "Items:     %d\n", st.Items)
	if st.SizeBytes > 0 {
		fmt.Fprintf(w, "Size:      %.2f MB\n", float64(st.SizeBytes)/(1024*1024))
	}
	if st.Capacity > 0 {
		fmt.Fprintf(w, "Capacity:  %d\n", st.Capacity)
	}
	fmt.Fprintf(w, "TTL:       %s\n", cm.TTL())
	if st.Hits+st.Misses > 0 {
		fmt.Fprintf(w, "Hit rate:  %.1f%% (%d hits, %d misses)\n", st.HitRate()*100, st.Hits, st.Misses)
	}

	keys := make([]string, 0, len(st.Details))
	for k := range st.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-10s %s\n", k+":", st.Details[k])
	}
	return nil
}

func runCacheClearCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		return errCacheDisabled
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	cm, err := newCacheManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cm.Close()

	if !cm.Clear(cmd.Context()) {
		return fmt.Errorf("failed to clear the %s cache", cm.Kind())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared the %s cache.\n", cm.Kind())
	return nil
}
