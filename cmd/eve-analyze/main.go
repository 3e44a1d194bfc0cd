// Command eve-analyze is the analysis-and-caching core's CLI: it
// resolves a single target's description and rule against a source
// tree and prints (optionally persisting) its analysis result, and
// hosts the target-cache maintenance subcommands ("cache gc",
// "cache stats") alongside it.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalgo/eve-build/internal/cliconfig"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "eve-analyze",
	Short:         "analyze targets and maintain the target cache",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.OnInitialize(cliconfig.InitConfig(&cfgFile))
	cliconfig.RegisterFlags(rootCmd, &cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eve-analyze:", err)
		os.Exit(int(exitCodeOf(err)))
	}
}

func exitCodeOf(err error) ExitCode {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitAnalysisError
}
