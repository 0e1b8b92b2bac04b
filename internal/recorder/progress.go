package recorder

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ProgressRecorder keeps running crawl totals and exports them as
// Prometheus collectors. It owns all per-fetch counters for the run.
type ProgressRecorder struct {
	logger *zap.Logger

	urls  atomic.Int64
	bytes atomic.Int64

	fetchTotal    *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewProgress registers the collectors against the provided registry.
func NewProgress(logger *zap.Logger, reg prometheus.Registerer) (*ProgressRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &ProgressRecorder{
		logger: logger,
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgrab_fetches_total",
			Help: "Fetch completions partitioned by host and status class.",
		}, []string{"host", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgrab_fetch_bytes_total",
			Help: "Response body bytes downloaded per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webgrab_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by host and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"host", "status_class"}),
	}
	for _, collector := range []prometheus.Collector{
		p.fetchTotal,
		p.fetchBytes,
		p.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return p, nil
}

// Record implements Recorder.
func (p *ProgressRecorder) Record(_ context.Context, t Transcript) error {
	host := t.URL.Host
	if host == "" {
		host = "unknown"
	}
	class := statusClass(t)
	p.fetchTotal.WithLabelValues(host, class).Inc()
	if len(t.Body) > 0 {
		p.fetchBytes.WithLabelValues(host).Add(float64(len(t.Body)))
	}
	if t.Duration > 0 {
		p.fetchDuration.WithLabelValues(host, class).Observe(t.Duration.Seconds())
	}

	p.urls.Add(1)
	p.bytes.Add(int64(len(t.Body)))

	p.logger.Info("Fetched",
		zap.String("url", t.URL.URL),
		zap.Int("status", t.StatusCode),
		zap.Int("bytes", len(t.Body)),
		zap.Duration("duration", t.Duration),
	)
	return nil
}

// Close logs the run totals.
func (p *ProgressRecorder) Close(context.Context) error {
	p.logger.Info("Crawl finished",
		zap.Int64("urls", p.urls.Load()),
		zap.Int64("bytes", p.bytes.Load()),
	)
	return nil
}

// Totals reports the URLs and body bytes recorded so far.
func (p *ProgressRecorder) Totals() (urls, bytes int64) {
	return p.urls.Load(), p.bytes.Load()
}

func statusClass(t Transcript) string {
	if t.StatusCode == 0 {
		return "error"
	}
	return strconv.Itoa(t.StatusCode/100) + "xx"
}
