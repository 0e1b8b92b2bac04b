package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/app"
	"github.com/skreps/webgrab/internal/config"
	"github.com/skreps/webgrab/internal/engine"
	"github.com/skreps/webgrab/internal/logging"
)

// lastExitCode carries the crawl's exit status out of cobra's
// error-only command flow.
var lastExitCode int

// configError marks failures that happen before crawling starts.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// exitCodeFromError maps command failures onto process exit codes.
func exitCodeFromError(err error) (int, bool) {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return engine.ExitParseError, true
	}
	return 0, false
}

// newCrawlCmd creates the crawl subcommand: seeds may be given as
// arguments or through configuration.
func newCrawlCmd() *cobra.Command {
	var (
		quiet       bool
		warcFile    string
		outputDir   string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Start or resume a crawl",
		Long: `Crawl fetches the given URLs and, with recursion enabled, everything
they link to within the configured bounds. A crawl interrupted with
SIGINT finalizes in-flight fetches and can be resumed by running the
same command again with the same frontier database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return &configError{err: err}
			}
			if len(args) > 0 {
				cfg.Crawl.Seeds = args
			}
			if warcFile != "" {
				cfg.WARC.File = warcFile
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}
			if metricsAddr != "" {
				cfg.Debug.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return &configError{err: err}
			}

			logger, err := logging.New(cfg.Logging.Development, quiet)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			crawl, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize crawl: %w", err)
			}
			defer crawl.Close()

			lastExitCode = crawl.Run(ctx)
			if lastExitCode != 0 {
				logger.Warn("Crawl finished with errors", zap.Int("exit_code", lastExitCode))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.Flags().StringVar(&warcFile, "warc-file", "", "write an archival WARC container to this path")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory documents are written under")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address while crawling")
	return cmd
}
