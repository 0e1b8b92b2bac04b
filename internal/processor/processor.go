// Package processor runs the per-URL pipeline: eligibility filtering,
// robots exclusion, fetch, link extraction, disk write, and recording,
// finalizing each frontier entry exactly once.
package processor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/fetch"
	"github.com/skreps/webgrab/internal/filter"
	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/recorder"
	"github.com/skreps/webgrab/internal/robots"
	"github.com/skreps/webgrab/internal/scrape"
	"github.com/skreps/webgrab/internal/urlx"
	"github.com/skreps/webgrab/internal/writer"
)

// ErrorClass categorizes per-URL failures for run-level status
// reporting. Filtered and robots-excluded entries are not failures.
type ErrorClass int

// Failure categories in rough order of specificity.
const (
	ClassNetwork ErrorClass = iota + 1
	ClassSSL
	ClassProtocol
	ClassServerError
	ClassFileIO
)

// Config bounds pipeline behavior not covered by the filter set.
type Config struct {
	// MaxRedirects caps the redirect chain length per original URL.
	MaxRedirects int
	// OnError observes every per-URL failure class; may be nil.
	OnError func(ErrorClass)
}

// WebProcessor owns one claimed entry at a time from filter to
// finalization. It is safe for concurrent use; all collaborators are.
type WebProcessor struct {
	cfg      Config
	table    frontier.Table
	filters  *filter.Pipeline
	robots   robots.Policy
	client   *fetch.Client
	scrapers []scrape.Scraper
	writer   writer.Writer
	recorder recorder.Recorder
	logger   *zap.Logger
}

// New wires the pipeline. Every collaborator is required except the
// logger.
func New(
	cfg Config,
	table frontier.Table,
	filters *filter.Pipeline,
	policy robots.Policy,
	client *fetch.Client,
	scrapers []scrape.Scraper,
	w writer.Writer,
	rec recorder.Recorder,
	logger *zap.Logger,
) *WebProcessor {
	if cfg.MaxRedirects < 1 {
		cfg.MaxRedirects = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebProcessor{
		cfg:      cfg,
		table:    table,
		filters:  filters,
		robots:   policy,
		client:   client,
		scrapers: scrapers,
		writer:   w,
		recorder: rec,
		logger:   logger,
	}
}

// Process runs one claimed entry through the pipeline. The returned
// error is reserved for frontier failures, which are fatal to the run;
// per-URL fetch and write failures finalize the entry instead.
func (p *WebProcessor) Process(ctx context.Context, e frontier.Entry) error {
	u, err := urlx.Parse(e.URL)
	if err != nil {
		p.logger.Warn("Dropping unparseable frontier entry", zap.String("url", e.URL), zap.Error(err))
		return p.table.SetError(ctx, e.URL)
	}

	if ok, name := p.filters.Test(u, e); !ok {
		p.logger.Debug("Filtered", zap.String("url", e.URL), zap.String("filter", name))
		return p.table.SetDone(ctx, e.URL)
	}
	if !p.robots.Allowed(ctx, u) {
		p.logger.Debug("Excluded by robots.txt", zap.String("url", e.URL))
		return p.table.SetDone(ctx, e.URL)
	}

	result, err := p.client.Fetch(ctx, u, e.Referrer)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a fetch verdict; leave the entry for resume.
			return ctx.Err()
		}
		p.logger.Info("Fetch failed", zap.String("url", e.URL), zap.Int("tries", e.Tries+1), zap.Error(err))
		p.reportError(classify(err))
		p.record(ctx, failureTranscript(u, err))
		return p.table.SetError(ctx, e.URL)
	}

	p.record(ctx, resultTranscript(u, result))

	switch {
	case result.IsRedirect():
		return p.finishRedirect(ctx, u, e, result)
	case result.IsSuccess():
		return p.finishSuccess(ctx, u, e, result)
	default:
		p.logger.Info("Server rejected URL",
			zap.String("url", e.URL),
			zap.Int("status", result.StatusCode),
			zap.Int("tries", e.Tries+1),
		)
		p.reportError(ClassServerError)
		return p.table.SetError(ctx, e.URL)
	}
}

// finishRedirect re-submits the redirect target as a fresh candidate so
// it passes through filtering and frontier dedup like any discovery.
func (p *WebProcessor) finishRedirect(ctx context.Context, u urlx.URLInfo, e frontier.Entry, result *fetch.Result) error {
	if e.RedirectDepth+1 > p.cfg.MaxRedirects {
		p.logger.Warn("Redirect limit exceeded", zap.String("url", e.URL), zap.Int("depth", e.RedirectDepth))
		p.reportError(ClassProtocol)
		return p.table.SetError(ctx, e.URL)
	}
	target, err := result.RedirectTarget(u)
	if err != nil {
		p.logger.Warn("Unparseable redirect target", zap.String("url", e.URL), zap.Error(err))
		p.reportError(ClassProtocol)
		return p.table.SetError(ctx, e.URL)
	}

	candidate := frontier.Candidate{
		URL:           target,
		Level:         e.Level,
		Referrer:      e.Referrer,
		Requisite:     e.Requisite,
		RedirectDepth: e.RedirectDepth + 1,
	}
	if err := p.table.Add(ctx, []frontier.Candidate{candidate}); err != nil {
		return fmt.Errorf("enqueue redirect target: %w", err)
	}
	return p.table.SetDone(ctx, e.URL)
}

func (p *WebProcessor) finishSuccess(ctx context.Context, u urlx.URLInfo, e frontier.Entry, result *fetch.Result) error {
	links := scrape.ScrapeAll(p.scrapers, result.Body, result.Headers.Get("Content-Type"), u)
	if len(links) > 0 {
		candidates := make([]frontier.Candidate, 0, len(links))
		for _, link := range links {
			candidates = append(candidates, frontier.Candidate{
				URL:       link.URL,
				Level:     e.Level + 1,
				Referrer:  u.URL,
				Requisite: link.Requisite,
			})
		}
		if err := p.table.Add(ctx, candidates); err != nil {
			return fmt.Errorf("enqueue discoveries: %w", err)
		}
	}

	res := writer.Resource{
		StatusLine: result.StatusLine,
		Headers:    result.Headers,
		Body:       result.Body,
	}
	if _, err := p.writer.Save(ctx, u, res); err != nil {
		p.logger.Error("Write failed", zap.String("url", e.URL), zap.Error(err))
		p.reportError(ClassFileIO)
		return p.table.SetError(ctx, e.URL)
	}
	return p.table.SetDone(ctx, e.URL)
}

func (p *WebProcessor) reportError(class ErrorClass) {
	if p.cfg.OnError != nil {
		p.cfg.OnError(class)
	}
}

// classify maps a fetch failure to its reporting class.
func classify(err error) ErrorClass {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ClassSSL
	}
	var protoErr *fetch.ProtocolError
	if errors.As(err, &protoErr) {
		return ClassProtocol
	}
	return ClassNetwork
}

// record delivers a transcript; sink failures never change the entry's
// fate.
func (p *WebProcessor) record(ctx context.Context, t recorder.Transcript) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, t); err != nil {
		p.logger.Warn("Recorder failed", zap.String("url", t.URL.URL), zap.Error(err))
	}
}

func failureTranscript(u urlx.URLInfo, err error) recorder.Transcript {
	return recorder.Transcript{
		URL:       u,
		Method:    "GET",
		Outcome:   recorder.OutcomeError,
		Err:       err.Error(),
		FetchedAt: time.Now(),
	}
}

func resultTranscript(u urlx.URLInfo, result *fetch.Result) recorder.Transcript {
	outcome := recorder.OutcomeSuccess
	if result.StatusCode >= 400 {
		outcome = recorder.OutcomeError
	}
	return recorder.Transcript{
		URL:             u,
		Method:          "GET",
		RequestHeaders:  result.RequestHeaders,
		StatusCode:      result.StatusCode,
		StatusLine:      result.StatusLine,
		ResponseHeaders: result.Headers,
		Body:            result.Body,
		Outcome:         outcome,
		Duration:        result.Duration,
		FetchedAt:       time.Now(),
	}
}
