// Package cliconfig is the configuration layer shared by this repo's
// three binaries (cmd/eve-analyze, cmd/eve-gc, cmd/eve-serve): the same
// global flags (--config, --log-level, --log-format, --jobs, --cache-dir,
// --cache-backend), bound through viper the way the teacher's cli/root.go
// binds its own service flags, plus the shared logic each binary needs to
// turn those flags into a running *common.ContextLogger and
// targetcache.Store.
package cliconfig

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo/eve-build/common"
	"github.com/evalgo/eve-build/targetcache"
	"github.com/evalgo/eve-build/targetcache/badgerstore"
)

// Config is the resolved set of global flags, read out of viper after
// cobra has parsed argv.
type Config struct {
	LogLevel     string
	LogFormat    string
	Jobs         int
	CacheDir     string
	CacheBackend string
}

// RegisterFlags adds the global persistent flags to root and binds each
// to viper, mirroring the teacher's init()'s PersistentFlags/BindPFlag
// pairing. cfgFile receives the --config flag's raw value for
// OnInitialize to pick up.
func RegisterFlags(root *cobra.Command, cfgFile *string) {
	root.PersistentFlags().StringVar(cfgFile, "config", "", "config file (default search: $HOME/.eve-build.yaml, ./.eve-build.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	root.PersistentFlags().Int("jobs", 0, "task-pool size (parsed into Config.Jobs; no command reads it)")
	root.PersistentFlags().String("cache-dir", defaultCacheDir(), "target cache directory")
	root.PersistentFlags().String("cache-backend", "bolt", "target cache backend (bolt, badger)")

	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("jobs", root.PersistentFlags().Lookup("jobs"))
	_ = viper.BindPFlag("cache_dir", root.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("cache_backend", root.PersistentFlags().Lookup("cache-backend"))
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".eve-build-cache"
	}
	return home + "/.cache/eve-build"
}

// InitConfig is cobra.OnInitialize's callback: it resolves *cfgFile (a
// pointer so the closure observes the flag's value after cobra parses
// argv, not at registration time), or searches the home directory and
// the working directory for ".eve-build.yaml", and merges in any
// environment variables — the same precedence order (flags > env > file
// > default) the teacher's initConfig establishes.
func InitConfig(cfgFile *string) func() {
	return func() {
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
		} else {
			home, err := os.UserHomeDir()
			if err == nil {
				viper.AddConfigPath(home)
			}
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".eve-build")
		}
		viper.SetEnvPrefix("EVE_BUILD")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()
	}
}

// Load reads the bound viper keys into a Config.
func Load() Config {
	return Config{
		LogLevel:     viper.GetString("log_level"),
		LogFormat:    viper.GetString("log_format"),
		Jobs:         viper.GetInt("jobs"),
		CacheDir:     viper.GetString("cache_dir"),
		CacheBackend: viper.GetString("cache_backend"),
	}
}

// NewLogger builds the ambient-stack structured logger these binaries
// share, per common.LoggerConfig's shape.
func NewLogger(cfg Config, component string) *common.ContextLogger {
	level := common.LogLevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = common.LogLevelDebug
	case "warn":
		level = common.LogLevelWarn
	case "error":
		level = common.LogLevelError
	case "fatal":
		level = common.LogLevelFatal
	}
	logger := common.NewLogger(common.LoggerConfig{
		Level:  level,
		Format: cfg.LogFormat,
	})
	return common.NewContextLogger(logger, map[string]interface{}{"component": component})
}

// OpenCacheStore opens the target cache backend cfg.CacheBackend names,
// rooted at cfg.CacheDir.
func OpenCacheStore(cfg Config) (targetcache.Store, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %q: %w", cfg.CacheDir, err)
	}
	switch cfg.CacheBackend {
	case "", "bolt":
		return targetcache.OpenBoltStore(cfg.CacheDir + "/targetcache.db")
	case "badger":
		return badgerstore.Open(cfg.CacheDir + "/badger")
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
