// Package recorder fans fetch transcripts out to archival and
// diagnostic sinks. A sink failure is isolated and logged; it never
// stops the crawl or delivery to the other sinks.
package recorder

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/urlx"
)

// Outcome is the terminal classification of one fetch.
type Outcome string

// Transcript outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Transcript is one request/response (or request/failure) exchange.
type Transcript struct {
	URL    urlx.URLInfo
	Method string
	// RequestHeaders are the headers as sent, including User-Agent.
	RequestHeaders http.Header
	// Response fields are zero when the fetch failed before a response.
	StatusCode      int
	StatusLine      string
	ResponseHeaders http.Header
	Body            []byte

	Outcome   Outcome
	Err       string
	Duration  time.Duration
	FetchedAt time.Time
}

// Recorder consumes transcripts. Implementations must tolerate
// concurrent calls.
type Recorder interface {
	Record(ctx context.Context, t Transcript) error
	Close(ctx context.Context) error
}

// Demux delivers every transcript to every sink.
type Demux struct {
	sinks  []Recorder
	logger *zap.Logger
}

// NewDemux builds the fan-out dispatcher; nil sinks are skipped.
func NewDemux(logger *zap.Logger, sinks ...Recorder) *Demux {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Recorder, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Demux{sinks: kept, logger: logger}
}

// Record implements Recorder. Sink errors are logged, never returned.
func (d *Demux) Record(ctx context.Context, t Transcript) error {
	for _, sink := range d.sinks {
		if err := sink.Record(ctx, t); err != nil {
			d.logger.Warn("Recorder sink failed", zap.String("url", t.URL.URL), zap.Error(err))
		}
	}
	return nil
}

// Close flushes every sink, returning the first error after trying all.
func (d *Demux) Close(ctx context.Context) error {
	var first error
	for _, sink := range d.sinks {
		if err := sink.Close(ctx); err != nil {
			d.logger.Warn("Recorder sink close failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
