// Package app assembles the crawl from configuration: frontier, filter
// pipeline, transport, writers, recorders, and engine. It is the only
// package that knows how all the pieces fit together.
package app

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/api"
	"github.com/skreps/webgrab/internal/config"
	"github.com/skreps/webgrab/internal/engine"
	"github.com/skreps/webgrab/internal/fetch"
	"github.com/skreps/webgrab/internal/filter"
	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/netx"
	"github.com/skreps/webgrab/internal/processor"
	"github.com/skreps/webgrab/internal/recorder"
	"github.com/skreps/webgrab/internal/robots"
	"github.com/skreps/webgrab/internal/scrape"
	"github.com/skreps/webgrab/internal/urlx"
	"github.com/skreps/webgrab/internal/waiter"
	"github.com/skreps/webgrab/internal/writer"
)

// App holds the assembled crawl, ready to run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	table    frontier.Table
	pool     *netx.Pool
	recorder recorder.Recorder
	engine   *engine.Engine
	exit     *engine.ExitTracker
	debug    *api.Server
	registry *prometheus.Registry
}

// New builds every component from cfg. It fails fast: any construction
// error aborts before the first fetch.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seeds, err := cfg.SeedURLs()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		exit:     &engine.ExitTracker{},
		registry: prometheus.NewRegistry(),
	}

	if a.table, err = openFrontier(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := a.table.Add(ctx, frontier.Seed(seeds)); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed frontier: %w", err)
	}

	w, err := waiter.New(cfg.Wait.Base, cfg.Wait.Random, cfg.Wait.RetryMax)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pool = netx.NewPool(netx.DialConfig{
		Resolver:       netx.NewResolver(families(cfg.HTTP.PreferFamily), cfg.HTTP.DNSTimeout, cfg.HTTP.RotateDNS),
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		KeepAlive:      cfg.HTTP.KeepAlive,
	}, cfg.HTTP.PerHostConnections)

	client := fetch.NewClient(fetch.Config{
		Retries:          cfg.HTTP.FetchRetries,
		RetryConnRefused: cfg.HTTP.RetryConnRefused,
		RetryDNSError:    cfg.HTTP.RetryDNSError,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
	}, a.pool, w, &fetch.RequestFactory{UserAgent: cfg.Crawl.UserAgent}, logger.Named("fetch"))

	policy, err := robots.New(cfg.Crawl.Robots, cfg.Crawl.UserAgent, client.FetchRobots, logger.Named("robots"))
	if err != nil {
		a.Close()
		return nil, err
	}

	filters, err := buildFilters(cfg, seeds)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.recorder, err = buildRecorder(cfg, logger, a.registry); err != nil {
		a.Close()
		return nil, err
	}

	docWriter, err := buildWriter(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	proc := processor.New(
		processor.Config{MaxRedirects: cfg.Crawl.MaxRedirects, OnError: a.exit.Observe},
		a.table,
		filters,
		policy,
		client,
		[]scrape.Scraper{scrape.NewHTMLScraper(nil, nil), scrape.NewCSSScraper()},
		docWriter,
		a.recorder,
		logger.Named("processor"),
	)

	a.engine = engine.New(
		engine.Config{Concurrent: cfg.Crawl.Concurrent},
		a.table,
		proc,
		logger.Named("engine"),
	)

	if cfg.Debug.Addr != "" {
		a.debug = api.NewServer(a.table, a.registry, logger.Named("api"))
	}
	return a, nil
}

// Run executes the crawl and returns the process exit code.
func (a *App) Run(ctx context.Context) int {
	if a.debug != nil {
		go func() {
			if err := a.debug.Serve(ctx, a.cfg.Debug.Addr); err != nil {
				a.logger.Warn("Debug listener failed", zap.Error(err))
			}
		}()
	}

	if err := a.engine.Run(ctx); err != nil {
		a.logger.Error("Crawl aborted", zap.Error(err))
		return engine.ExitGenericError
	}
	return a.exit.Code()
}

// Close flushes the recorder and releases connections and the frontier.
func (a *App) Close() {
	if a.recorder != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.recorder.Close(flushCtx); err != nil {
			a.logger.Warn("Recorder close failed", zap.Error(err))
		}
		cancel()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.table != nil {
		if err := a.table.Close(); err != nil {
			a.logger.Warn("Frontier close failed", zap.Error(err))
		}
	}
}

func openFrontier(ctx context.Context, cfg config.Config, logger *zap.Logger) (frontier.Table, error) {
	switch cfg.Frontier.Backend {
	case config.BackendMemory:
		return frontier.NewMemoryTable(cfg.Crawl.MaxTries), nil
	case config.BackendPostgres:
		return frontier.OpenPostgres(ctx, cfg.Frontier.DSN, cfg.Crawl.MaxTries)
	default:
		return frontier.OpenSQLite(ctx, cfg.Frontier.Path, cfg.Crawl.MaxTries, logger.Named("frontier"))
	}
}

func buildFilters(cfg config.Config, seeds []urlx.URLInfo) (*filter.Pipeline, error) {
	filters := []filter.Filter{
		filter.SchemeFilter{},
		filter.NewTriesFilter(cfg.Crawl.MaxTries),
		filter.NewRecursiveFilter(cfg.Crawl.Recursive, cfg.Crawl.PageRequisites),
		filter.NewLevelFilter(cfg.Crawl.Level),
		filter.NewSpanHostsFilter(seeds, cfg.Crawl.SpanHosts),
	}
	if len(cfg.Accept.Domains) > 0 || len(cfg.Accept.ExcludeDomains) > 0 {
		filters = append(filters, filter.NewDomainFilter(cfg.Accept.Domains, cfg.Accept.ExcludeDomains))
	}
	if len(cfg.Accept.Hostnames) > 0 || len(cfg.Accept.ExcludeHostnames) > 0 {
		filters = append(filters, filter.NewHostnameFilter(cfg.Accept.Hostnames, cfg.Accept.ExcludeHostnames))
	}
	if cfg.Accept.AcceptRegex != "" || cfg.Accept.RejectRegex != "" {
		accept, err := compileOptional(cfg.Accept.AcceptRegex)
		if err != nil {
			return nil, fmt.Errorf("accept regex: %w", err)
		}
		reject, err := compileOptional(cfg.Accept.RejectRegex)
		if err != nil {
			return nil, fmt.Errorf("reject regex: %w", err)
		}
		filters = append(filters, filter.NewRegexFilter(accept, reject))
	}
	if len(cfg.Accept.IncludeDirectories) > 0 || len(cfg.Accept.ExcludeDirectories) > 0 {
		filters = append(filters, filter.NewDirectoryFilter(cfg.Accept.IncludeDirectories, cfg.Accept.ExcludeDirectories))
	}
	if cfg.Accept.NoParent {
		filters = append(filters, filter.NewParentFilter(seeds))
	}
	return filter.NewPipeline(filters...), nil
}

func buildWriter(cfg config.Config, logger *zap.Logger) (writer.Writer, error) {
	if cfg.Output.Mode == config.ModeNone {
		return writer.NullWriter{}, nil
	}
	namer := writer.PathNamer{
		Prefix:       cfg.Output.Dir,
		IndexName:    cfg.Output.IndexName,
		UseDirs:      true,
		CutDirs:      cfg.Output.CutDirs,
		ProtocolDirs: cfg.Output.ProtocolDirs,
		HostDirs:     cfg.Output.HostDirs,
	}
	opts := writer.Options{SaveHeaders: cfg.Output.SaveHeaders, ServerTimestamps: true}
	wlog := logger.Named("writer")

	switch cfg.Output.Mode {
	case config.ModeOverwrite:
		return writer.NewOverwriteWriter(namer, opts, wlog), nil
	case config.ModeIgnore:
		return writer.NewIgnoreWriter(namer, opts, wlog), nil
	case config.ModeTimestamp:
		return writer.NewTimestampWriter(namer, opts, wlog), nil
	case config.ModeAntiClobber:
		return writer.NewAntiClobberWriter(namer, opts, wlog), nil
	default:
		return nil, fmt.Errorf("output mode %q is not recognized", cfg.Output.Mode)
	}
}

func buildRecorder(cfg config.Config, logger *zap.Logger, reg *prometheus.Registry) (recorder.Recorder, error) {
	progress, err := recorder.NewProgress(logger.Named("progress"), reg)
	if err != nil {
		return nil, err
	}
	sinks := []recorder.Recorder{progress}

	if cfg.WARC.File != "" {
		warc, err := recorder.NewWARC(recorder.WARCConfig{
			Path:        cfg.WARC.File,
			Compress:    cfg.WARC.Compress,
			Appending:   cfg.WARC.Append,
			Software:    cfg.Crawl.UserAgent,
			ExtraFields: sortedFields(cfg.WARC.ExtraFields),
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, warc)
	}
	if cfg.Logging.Development {
		sinks = append(sinks, recorder.NewPrint(os.Stdout))
	}
	return recorder.NewDemux(logger.Named("recorder"), sinks...), nil
}

func families(preference string) []netx.Family {
	switch preference {
	case "ipv4":
		return []netx.Family{netx.FamilyIPv4}
	case "ipv6":
		return []netx.Family{netx.FamilyIPv6}
	default:
		return nil
	}
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// sortedFields gives warcinfo extra fields a stable order.
func sortedFields(fields map[string]string) [][2]string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([][2]string, 0, len(names))
	for _, name := range names {
		out = append(out, [2]string{name, fields[name]})
	}
	return out
}
