package cli

import (
	"fmt"
	"io"

	"github.com/mikematt33/qgate/internal/cache"
	"github.com/spf13/cobra"
)

var (
	flagClearStats bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the metrics snapshot cache",
	Long: `Manage the disk cache of collected metrics.
Metrics are cached per commit, targets and skip flags, and only for clean
working trees. Cached entries expire after cache.ttl (1 hour by default).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached metrics",
	Long: `Remove all cached metrics from disk.
The next measure or compare runs every analyzer again.`,
	Example: `  qgate cache clear
  qgate cache clear --stats`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Display information about the current cache including entry count and total size.`,
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)

	cacheClearCmd.Flags().BoolVar(&flagClearStats, "stats", false, "Show statistics before clearing")
}

func openCache() (*cache.Cache, error) {
	cachePath, err := cache.GetDefaultCachePath()
	if err != nil {
		return nil, fmt.Errorf("error getting cache path: %w", err)
	}
	c, err := cache.New(cachePath, app.cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("error initializing cache: %w", err)
	}
	return c, nil
}

func printStats(w io.Writer, s cache.Stats) {
	_, _ = fmt.Fprintf(w, "  Entries: %d (%d valid, %d expired)\n", s.Entries, s.Valid, s.Expired)
	_, _ = fmt.Fprintf(w, "  Size: %.2f MB\n", float64(s.Bytes)/(1024*1024))
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	// Show stats before clearing if requested
	if flagClearStats {
		stats, err := c.Stats()
		if err != nil {
			app.log.Warn(fmt.Sprintf("Error getting cache stats: %v", err))
		} else {
			_, _ = fmt.Fprintln(out, "Cache statistics before clearing:")
			printStats(out, stats)
		}
	}

	if err := c.Clear(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	_, _ = fmt.Fprintln(out, "✓ Cache cleared successfully")
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("error getting cache stats: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Cache statistics:")
	_, _ = fmt.Fprintf(out, "  Location: %s\n", c.Dir())
	printStats(out, stats)
	_, _ = fmt.Fprintf(out, "  TTL: %s\n", app.cfg.Cache.TTL)
	return nil
}
