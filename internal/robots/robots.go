// Package robots enforces robots.txt exclusion rules per host.
package robots

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/urlx"
)

const hostCacheSize = 4096

// Policy answers whether the crawler may touch a URL.
type Policy interface {
	Allowed(ctx context.Context, u urlx.URLInfo) bool
}

// FetchFunc retrieves /robots.txt for a host. It must bypass URL
// filtering so exclusion rules are visible even for hosts whose
// robots.txt would itself be filtered out.
type FetchFunc func(ctx context.Context, u urlx.URLInfo) (status int, body []byte, err error)

// Checker fetches, parses, and caches robots.txt per host. A host whose
// robots.txt cannot be fetched or parsed is treated as fully allowed.
type Checker struct {
	fetch     FetchFunc
	userAgent string
	logger    *zap.Logger
	cache     *lru.Cache[string, *robotstxt.RobotsData]
}

// New builds a Policy respecting the enable toggle.
func New(enabled bool, userAgent string, fetch FetchFunc, logger *zap.Logger) (Policy, error) {
	if !enabled {
		return allowAll{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, *robotstxt.RobotsData](hostCacheSize)
	if err != nil {
		return nil, fmt.Errorf("robots cache: %w", err)
	}
	return &Checker{fetch: fetch, userAgent: userAgent, logger: logger, cache: cache}, nil
}

// Allowed implements Policy.
func (c *Checker) Allowed(ctx context.Context, u urlx.URLInfo) bool {
	data, err := c.load(ctx, u)
	if err != nil {
		c.logger.Warn("Robots fetch failed, allowing access", zap.String("host", u.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(c.userAgent)
	if group == nil {
		return true
	}
	target := u.Path
	if u.Query != "" {
		target += "?" + u.Query
	}
	return group.Test(target)
}

func (c *Checker) load(ctx context.Context, u urlx.URLInfo) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.HostPort()
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}

	robotsURL, err := urlx.Parse(u.Scheme + "://" + u.HostPort() + "/robots.txt")
	if err != nil {
		return nil, err
	}

	status, body, err := c.fetch(ctx, robotsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	c.cache.Add(key, data)
	return data, nil
}

type allowAll struct{}

func (allowAll) Allowed(context.Context, urlx.URLInfo) bool { return true }
