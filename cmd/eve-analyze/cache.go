package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalgo/eve-build/internal/cliconfig"
	"github.com/evalgo/eve-build/targetcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "target cache maintenance",
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "rotate the target cache's generations",
	Long: `gc implements §4.13's generation rotation (garbage_collector.hpp,
§4 item 2): the previous generation is discarded, the current generation
becomes the new previous generation, and a fresh current generation takes
its place. Run this periodically (cmd/eve-gc automates it on a schedule);
running it by hand is useful before a disk-constrained CI job.`,
	RunE: runCacheGC,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "report which backend and directory the target cache resolves to",
	RunE:  runCacheStats,
}

func init() {
	cacheCmd.AddCommand(cacheGCCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheGC(cmd *cobra.Command, args []string) error {
	cliCfg := cliconfig.Load()
	logger := cliconfig.NewLogger(cliCfg, "eve-analyze")

	store, err := cliconfig.OpenCacheStore(cliCfg)
	if err != nil {
		return exitWith(ExitInfraError, err)
	}
	defer store.Close()

	cache := targetcache.NewCache(store, cliCfg.CacheBackend)
	if err := cache.GC(); err != nil {
		logger.WithError(err).Error("cache gc failed")
		return exitWith(ExitInfraError, err)
	}
	logger.Info("target cache generations rotated")
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cliCfg := cliconfig.Load()

	store, err := cliconfig.OpenCacheStore(cliCfg)
	if err != nil {
		return exitWith(ExitInfraError, err)
	}
	defer store.Close()

	shard := targetcache.ShardID(cliCfg.CacheBackend)
	fmt.Fprintf(os.Stdout, "backend:    %s\n", cliCfg.CacheBackend)
	fmt.Fprintf(os.Stdout, "directory:  %s\n", cliCfg.CacheDir)
	fmt.Fprintf(os.Stdout, "shard:      %s\n", shard)
	return nil
}
