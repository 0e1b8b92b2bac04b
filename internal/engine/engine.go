// Package engine drives the crawl: a bounded pool of workers claiming
// frontier entries until the frontier drains or the context finishes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/waiter"
)

// Processor handles one claimed frontier entry end to end.
type Processor interface {
	Process(ctx context.Context, e frontier.Entry) error
}

// Config bounds the engine.
type Config struct {
	// Concurrent is the number of workers; values below 1 mean one.
	Concurrent int
	// PollInterval is how long an idle worker waits before re-checking
	// the frontier while other workers still hold entries.
	PollInterval time.Duration
}

// Engine runs the crawl loop to completion.
type Engine struct {
	cfg    Config
	table  frontier.Table
	proc   Processor
	logger *zap.Logger
}

// New builds an Engine.
func New(cfg Config, table frontier.Table, proc Processor, logger *zap.Logger) *Engine {
	if cfg.Concurrent < 1 {
		cfg.Concurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, table: table, proc: proc, logger: logger}
}

// Run blocks until every frontier entry is finalized, the context
// finishes, or a frontier failure aborts the run. A canceled context is
// a clean shutdown: in-progress entries stay claimable on resume.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Starting crawl", zap.Int("concurrent", e.cfg.Concurrent))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Concurrent; i++ {
		worker := i
		g.Go(func() error {
			return e.work(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		e.logger.Info("Crawl interrupted")
		return nil
	}
	if err != nil {
		return err
	}

	counts, countErr := e.table.Counts(context.Background())
	if countErr == nil {
		e.logger.Info("Crawl finished",
			zap.Int64("done", counts.Done),
			zap.Int64("errored", counts.Errored),
		)
	}
	return nil
}

// work claims and processes entries until the frontier drains.
func (e *Engine) work(ctx context.Context, id int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := e.table.GetAndClaim(ctx)
		if errors.Is(err, frontier.ErrEmpty) {
			counts, countErr := e.table.Counts(ctx)
			if countErr != nil {
				return fmt.Errorf("check frontier counts: %w", countErr)
			}
			if counts.Drained() {
				e.logger.Debug("Frontier drained", zap.Int("worker", id))
				return nil
			}
			// Another worker may still discover new URLs.
			if err := waiter.Sleep(ctx, e.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("claim frontier entry: %w", err)
		}

		if err := e.proc.Process(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("process %s: %w", entry.URL, err)
		}
	}
}
