// Package fetch performs single-URL HTTP exchanges over the pooled
// transport, with in-place retries for transient network failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/netx"
	"github.com/skreps/webgrab/internal/urlx"
	"github.com/skreps/webgrab/internal/waiter"
)

// ProtocolError wraps a malformed or unreadable response. It is never
// retried in place.
type ProtocolError struct {
	URL string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error fetching %s: %v", e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Config bounds the in-fetch retry loop. This loop is finer grained
// than the frontier's tries counter: a claim that exhausts these
// retries surfaces one failure to the frontier.
type Config struct {
	// Retries is the number of attempts per fetch; values below 1 mean
	// a single attempt.
	Retries int
	// RetryConnRefused treats connection failures as transient.
	RetryConnRefused bool
	// RetryDNSError treats resolution failures as transient.
	RetryDNSError bool
	// MaxBodySize truncates response bodies; zero means unlimited.
	MaxBodySize int64
}

// Result is one completed HTTP exchange. The body is fully read so the
// underlying connection is already back in the pool.
type Result struct {
	StatusCode     int
	StatusLine     string
	Headers        http.Header
	Body           []byte
	RequestHeaders http.Header
	Duration       time.Duration
}

// IsSuccess reports a 2xx response.
func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports a 3xx response carrying a Location header.
func (r *Result) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400 && r.Headers.Get("Location") != ""
}

// RedirectTarget resolves the Location header against the fetched URL.
func (r *Result) RedirectTarget(base urlx.URLInfo) (urlx.URLInfo, error) {
	return base.Resolve(r.Headers.Get("Location"))
}

// Client fetches URLs through the connection pool, pacing each host via
// the waiter.
type Client struct {
	cfg     Config
	pool    *netx.Pool
	waiter  *waiter.Waiter
	factory *RequestFactory
	logger  *zap.Logger
}

// NewClient wires the transport stack together.
func NewClient(cfg Config, pool *netx.Pool, w *waiter.Waiter, factory *RequestFactory, logger *zap.Logger) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, pool: pool, waiter: w, factory: factory, logger: logger}
}

// Fetch performs one paced GET of u, retrying transient failures in
// place. Any HTTP response, including 4xx and 5xx, returns a Result;
// the caller classifies status codes.
func (c *Client) Fetch(ctx context.Context, u urlx.URLInfo, referrer string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if err := c.waiter.Wait(ctx, u.Host); err != nil {
			return nil, err
		}

		result, err := c.attempt(ctx, u, referrer)
		if err == nil {
			c.waiter.Succeeded(u.Host)
			return result, nil
		}
		lastErr = err
		c.waiter.Failed(u.Host)
		if !c.transient(err) {
			break
		}
		c.logger.Debug("Transient fetch failure",
			zap.String("url", u.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// FetchRobots retrieves u for the robots checker. The signature matches
// robots.FetchFunc without importing that package.
func (c *Client) FetchRobots(ctx context.Context, u urlx.URLInfo) (int, []byte, error) {
	result, err := c.Fetch(ctx, u, "")
	if err != nil {
		return 0, nil, err
	}
	return result.StatusCode, result.Body, nil
}

func (c *Client) attempt(ctx context.Context, u urlx.URLInfo, referrer string) (*Result, error) {
	req, err := c.factory.New(u, referrer)
	if err != nil {
		return nil, &ProtocolError{URL: u.URL, Err: err}
	}

	hostPool := c.pool.For(u)
	conn, err := hostPool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := conn.Exchange(req)
	if err != nil {
		hostPool.Release(conn)
		if netx.IsTimeout(err) {
			return nil, err
		}
		return nil, &ProtocolError{URL: u.URL, Err: err}
	}

	var reader io.Reader = resp.Body
	if c.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(resp.Body, c.cfg.MaxBodySize)
	}
	body, err := io.ReadAll(reader)
	closeErr := resp.Body.Close()
	if err != nil || closeErr != nil {
		conn.MarkBroken()
		hostPool.Release(conn)
		if err == nil {
			err = closeErr
		}
		if netx.IsTimeout(err) {
			return nil, err
		}
		return nil, &ProtocolError{URL: u.URL, Err: err}
	}
	hostPool.Release(conn)

	return &Result{
		StatusCode:     resp.StatusCode,
		StatusLine:     resp.Proto + " " + resp.Status,
		Headers:        resp.Header,
		Body:           body,
		RequestHeaders: req.Header,
		Duration:       time.Since(start),
	}, nil
}

// transient reports whether err is retryable in place under the
// configured flags. Timeouts always are.
func (c *Client) transient(err error) bool {
	if netx.IsTimeout(err) {
		return true
	}
	var resolveErr *netx.ResolveError
	if errors.As(err, &resolveErr) {
		return c.cfg.RetryDNSError
	}
	var connectErr *netx.ConnectError
	if errors.As(err, &connectErr) {
		return c.cfg.RetryConnRefused
	}
	return false
}
