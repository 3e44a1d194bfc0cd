// Command eve-serve wraps serveapi.Server in a long-running process: the
// §6 "service-facing interface (consumed, not provided)" HTTP adapter,
// fronting a target cache so other eve-build processes (or a serving
// instance the teacher's own deployments would call out to) can resolve
// serve_target and serve_target_variables without re-running analysis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo/eve-build/internal/cliconfig"
	"github.com/evalgo/eve-build/serveapi"
	"github.com/evalgo/eve-build/targetcache"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "eve-serve",
	Short:         "serve cached target analysis results over HTTP",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

func init() {
	cobra.OnInitialize(cliconfig.InitConfig(&cfgFile))
	cliconfig.RegisterFlags(rootCmd, &cfgFile)

	rootCmd.Flags().String("addr", ":8090", "address the serve endpoint listens on")
	_ = viper.BindPFlag("serve_addr", rootCmd.Flags().Lookup("addr"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eve-serve:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCfg := cliconfig.Load()
	logger := cliconfig.NewLogger(cliCfg, "eve-serve")

	store, err := cliconfig.OpenCacheStore(cliCfg)
	if err != nil {
		return fmt.Errorf("opening target cache: %w", err)
	}
	defer store.Close()

	cache := targetcache.NewCache(store, cliCfg.CacheBackend)

	// archives and variables are left nil: this core has no archive
	// store or rule-variable registry of its own (§2 places archive
	// extraction and the rule registry's hosting out of scope); the
	// corresponding endpoints answer Found: false until a deployment
	// wires in real implementations of serveapi.ArchiveResolver and
	// serveapi.VariableLookup.
	server := serveapi.NewServer(cache, nil, nil)

	serverConfig := serveapi.DefaultServerConfig()
	if addr := viper.GetString("serve_addr"); addr != "" {
		serverConfig.Addr = addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("eve-serve shutting down")
		cancel()
	}()

	logger.WithField("addr", serverConfig.Addr).Info("eve-serve listening")
	if err := server.ListenAndServe(ctx, serverConfig); err != nil {
		return fmt.Errorf("serve endpoint exited: %w", err)
	}
	return nil
}
