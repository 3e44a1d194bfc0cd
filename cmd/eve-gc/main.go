// Command eve-gc is a long-running daemon that rotates the target
// cache's generations on a cron schedule (§4.13, §4 item 2's
// garbage_collector.hpp-derived two-generation rotation), the way the
// teacher's processing.Scheduler drives a periodic job on a
// robfig/cron.Cron.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo/eve-build/internal/cliconfig"
	"github.com/evalgo/eve-build/targetcache"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "eve-gc",
	Short:         "periodically rotate the target cache's generations",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runGC,
}

func init() {
	cobra.OnInitialize(cliconfig.InitConfig(&cfgFile))
	cliconfig.RegisterFlags(rootCmd, &cfgFile)

	rootCmd.Flags().String("schedule", "0 0 * * * *", "cron schedule (robfig/cron seconds-field form) the rotation runs on")
	_ = viper.BindPFlag("gc_schedule", rootCmd.Flags().Lookup("schedule"))
	rootCmd.Flags().Bool("run-once", false, "rotate once immediately and exit, instead of running on a schedule")
	_ = viper.BindPFlag("gc_run_once", rootCmd.Flags().Lookup("run-once"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eve-gc:", err)
		os.Exit(1)
	}
}

func runGC(cmd *cobra.Command, args []string) error {
	cliCfg := cliconfig.Load()
	logger := cliconfig.NewLogger(cliCfg, "eve-gc")

	store, err := cliconfig.OpenCacheStore(cliCfg)
	if err != nil {
		return fmt.Errorf("opening target cache: %w", err)
	}
	defer store.Close()

	cache := targetcache.NewCache(store, cliCfg.CacheBackend)

	rotate := func() {
		if err := cache.GC(); err != nil {
			logger.WithError(err).Error("scheduled generation rotation failed")
			return
		}
		logger.Info("target cache generations rotated")
	}

	if viper.GetBool("gc_run_once") {
		rotate()
		return nil
	}

	schedule := viper.GetString("gc_schedule")
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, rotate); err != nil {
		return fmt.Errorf("invalid --schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.WithField("schedule", schedule).Info("eve-gc started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("eve-gc shutting down")
	<-c.Stop().Done()
	return nil
}
