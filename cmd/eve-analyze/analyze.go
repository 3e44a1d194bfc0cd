package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/internal/cliconfig"
	"github.com/evalgo/eve-build/sourceroot"
	"github.com/evalgo/eve-build/targetcache"
	"github.com/evalgo/eve-build/targetmap"
	"github.com/evalgo/eve-build/targetmap/rules"
)

var (
	analyzeRoot        string
	analyzeRulesFile   string
	analyzeConfigFile  string
	analyzeDefines     []string
	analyzeStoreResult bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <target>",
	Short: "analyze a single target and print its result",
	Long: `analyze loads the named target's description, applies its rule (built-in
or user-defined) and prints the resulting {artifacts, runfiles, provides}
triple as JSON (§6 "Target-cache on-disk format" gives this triple's
on-disk shape; analyze prints the same shape directly, uncached, unless
--store is given).`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRoot, "root", ".", "source root the target is resolved against")
	analyzeCmd.Flags().StringVar(&analyzeRulesFile, "rules", rules.DefaultRuleFileName, "path (relative to root) of the rule file")
	analyzeCmd.Flags().StringVarP(&analyzeConfigFile, "build-config", "c", "", "JSON configuration file to load")
	analyzeCmd.Flags().StringArrayVarP(&analyzeDefines, "define", "D", nil, "JSON object overlaid on top of --build-config, merge-on-top; repeatable")
	analyzeCmd.Flags().BoolVar(&analyzeStoreResult, "store", false, "also persist the analysis result into the target cache")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	target, err := parseTargetName(args[0])
	if err != nil {
		return usageError(err)
	}

	config, err := loadBuildConfiguration(analyzeConfigFile, analyzeDefines)
	if err != nil {
		return usageError(err)
	}

	cliCfg := cliconfig.Load()
	logger := cliconfig.NewLogger(cliCfg, "eve-analyze")

	source := sourceroot.NewOS(analyzeRoot)
	loader := targetmap.NewFileTargetLoader(source)
	ruleProvider := rules.NewFileRuleProvider(source, analyzeRulesFile)

	analyzer := targetmap.New(ruleProvider, loader, source, func(fatal bool, message string) {
		if fatal {
			logger.Error(message)
			return
		}
		logger.Warn(message)
	})

	key := targetmap.ConfiguredTargetKey{Target: target, Config: config}
	analyzed, err := analyzer.Analyze(key)
	if err != nil {
		logger.WithError(err).Error("analysis failed")
		return exitWith(ExitAnalysisError, err)
	}

	if analyzeStoreResult {
		if err := storeAnalyzed(cliCfg, key, analyzed); err != nil {
			logger.WithError(err).Error("storing analysis result failed")
			return exitWith(ExitInfraError, err)
		}
	}

	data, err := analyzed.Result.ToJSON(expr.SerializeAll)
	if err != nil {
		return exitWith(ExitAnalysisError, fmt.Errorf("rendering result: %w", err))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}
	fmt.Fprintln(os.Stdout, pretty.String())
	return nil
}

func storeAnalyzed(cliCfg cliconfig.Config, key targetmap.ConfiguredTargetKey, analyzed *targetmap.AnalyzedTarget) error {
	store, err := cliconfig.OpenCacheStore(cliCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cache := targetcache.NewCache(store, cliCfg.CacheBackend)
	cacheKey, err := targetcache.ComputeKey(repoFingerprint(analyzeRoot), key.Target, key.Config)
	if err != nil {
		return err
	}
	entry := targetcache.NewEntry(analyzed.Result, sortedImplied(analyzed.ImpliedExports), "")
	return cache.Store(cacheKey, entry, targetcache.NoopDownloader)
}

// repoFingerprint stands in for the repository-root tree identifier §6's
// target-cache key encoding names ("repo_key"): with no git-backed source
// root wired into this core (§2 places that out of scope), the source
// root's own path is the closest available stable identifier.
func repoFingerprint(root string) exhash.Digest {
	return exhash.Compute([]byte(root))
}

func sortedImplied(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
