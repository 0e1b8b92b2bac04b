// Package cmd defines the CLI commands for the webgrab executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skreps/webgrab/internal/engine"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webgrab",
		Short: "A recursive, resumable web crawler and archiver.",
		Long: `webgrab fetches a site (or a set of seed URLs) recursively, writing
documents to disk and optionally to a WARC archive. Interrupted crawls
resume from the on-disk frontier without refetching finished URLs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults plus WEBGRAB_* environment variables apply)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "webgrab: %v\n", err)
		if code, ok := exitCodeFromError(err); ok {
			return code
		}
		return engine.ExitGenericError
	}
	return lastExitCode
}
