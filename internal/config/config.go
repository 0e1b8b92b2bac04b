// Package config loads and validates crawl configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skreps/webgrab/internal/urlx"
)

// Config captures every crawl knob loaded from file, environment, and
// flags.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Accept   AcceptConfig   `mapstructure:"accept"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Wait     WaitConfig     `mapstructure:"wait"`
	Output   OutputConfig   `mapstructure:"output"`
	WARC     WARCConfig     `mapstructure:"warc"`
	Frontier FrontierConfig `mapstructure:"frontier"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlConfig governs traversal shape and bounds.
type CrawlConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	Recursive      bool     `mapstructure:"recursive"`
	PageRequisites bool     `mapstructure:"page_requisites"`
	SpanHosts      bool     `mapstructure:"span_hosts"`
	Level          int      `mapstructure:"level"`
	MaxTries       int      `mapstructure:"max_tries"`
	MaxRedirects   int      `mapstructure:"max_redirects"`
	Concurrent     int      `mapstructure:"concurrent"`
	Robots         bool     `mapstructure:"robots"`
	UserAgent      string   `mapstructure:"user_agent"`
}

// AcceptConfig narrows which discovered URLs are eligible.
type AcceptConfig struct {
	Domains            []string `mapstructure:"domains"`
	ExcludeDomains     []string `mapstructure:"exclude_domains"`
	Hostnames          []string `mapstructure:"hostnames"`
	ExcludeHostnames   []string `mapstructure:"exclude_hostnames"`
	AcceptRegex        string   `mapstructure:"accept_regex"`
	RejectRegex        string   `mapstructure:"reject_regex"`
	IncludeDirectories []string `mapstructure:"include_directories"`
	ExcludeDirectories []string `mapstructure:"exclude_directories"`
	NoParent           bool     `mapstructure:"no_parent"`
}

// HTTPConfig configures the transport stack.
type HTTPConfig struct {
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	DNSTimeout         time.Duration `mapstructure:"dns_timeout"`
	KeepAlive          bool          `mapstructure:"keep_alive"`
	PreferFamily       string        `mapstructure:"prefer_family"`
	RotateDNS          bool          `mapstructure:"rotate_dns"`
	RetryConnRefused   bool          `mapstructure:"retry_connrefused"`
	RetryDNSError      bool          `mapstructure:"retry_dns_error"`
	FetchRetries       int           `mapstructure:"fetch_retries"`
	PerHostConnections int           `mapstructure:"per_host_connections"`
	MaxBodySize        int64         `mapstructure:"max_body_size"`
}

// WaitConfig controls per-host politeness pacing.
type WaitConfig struct {
	Base     time.Duration `mapstructure:"base"`
	Random   bool          `mapstructure:"random"`
	RetryMax time.Duration `mapstructure:"retry_max"`
}

// OutputConfig controls how fetched documents land on disk.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	Mode         string `mapstructure:"mode"`
	SaveHeaders  bool   `mapstructure:"save_headers"`
	IndexName    string `mapstructure:"index_name"`
	CutDirs      int    `mapstructure:"cut_dirs"`
	ProtocolDirs bool   `mapstructure:"protocol_dirs"`
	HostDirs     bool   `mapstructure:"host_dirs"`
}

// WARCConfig controls the archival container.
type WARCConfig struct {
	File        string            `mapstructure:"file"`
	Compress    bool              `mapstructure:"compress"`
	Append      bool              `mapstructure:"append"`
	ExtraFields map[string]string `mapstructure:"extra_fields"`
}

// FrontierConfig selects the URL table backend.
type FrontierConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// DebugConfig controls the observability listener.
type DebugConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Output modes.
const (
	ModeNone        = "none"
	ModeOverwrite   = "overwrite"
	ModeIgnore      = "ignore"
	ModeTimestamp   = "timestamp"
	ModeAntiClobber = "anticlobber"
)

// Frontier backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.recursive", true)
	v.SetDefault("crawl.page_requisites", false)
	v.SetDefault("crawl.span_hosts", false)
	v.SetDefault("crawl.level", 5)
	v.SetDefault("crawl.max_tries", 3)
	v.SetDefault("crawl.max_redirects", 20)
	v.SetDefault("crawl.concurrent", 2)
	v.SetDefault("crawl.robots", true)
	v.SetDefault("crawl.user_agent", "webgrab/1.0")

	v.SetDefault("http.connect_timeout", "10s")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.dns_timeout", "5s")
	v.SetDefault("http.keep_alive", true)
	v.SetDefault("http.prefer_family", "any")
	v.SetDefault("http.rotate_dns", false)
	v.SetDefault("http.retry_connrefused", false)
	v.SetDefault("http.retry_dns_error", false)
	v.SetDefault("http.fetch_retries", 3)
	v.SetDefault("http.per_host_connections", 2)
	v.SetDefault("http.max_body_size", 0)

	v.SetDefault("wait.base", "0s")
	v.SetDefault("wait.random", false)
	v.SetDefault("wait.retry_max", "10m")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.mode", ModeAntiClobber)
	v.SetDefault("output.save_headers", false)
	v.SetDefault("output.index_name", "index.html")
	v.SetDefault("output.cut_dirs", 0)
	v.SetDefault("output.protocol_dirs", false)
	v.SetDefault("output.host_dirs", true)

	v.SetDefault("warc.compress", true)
	v.SetDefault("warc.append", false)

	v.SetDefault("frontier.backend", BackendSQLite)
	v.SetDefault("frontier.path", "webgrab.db")

	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. A failure
// here aborts the run before any crawling starts.
func (c Config) Validate() error {
	if len(c.Crawl.Seeds) == 0 {
		return fmt.Errorf("crawl.seeds must list at least one URL")
	}
	for _, seed := range c.Crawl.Seeds {
		if _, err := urlx.Parse(seed); err != nil {
			return fmt.Errorf("invalid seed: %w", err)
		}
	}
	if c.Crawl.Concurrent <= 0 {
		return fmt.Errorf("crawl.concurrent must be > 0")
	}
	if c.Crawl.MaxTries <= 0 {
		return fmt.Errorf("crawl.max_tries must be > 0")
	}
	if c.HTTP.PerHostConnections <= 0 {
		return fmt.Errorf("http.per_host_connections must be > 0")
	}
	switch c.HTTP.PreferFamily {
	case "any", "ipv4", "ipv6":
	default:
		return fmt.Errorf("http.prefer_family must be any, ipv4, or ipv6")
	}
	switch c.Output.Mode {
	case ModeNone, ModeOverwrite, ModeIgnore, ModeTimestamp, ModeAntiClobber:
	default:
		return fmt.Errorf("output.mode %q is not recognized", c.Output.Mode)
	}
	switch c.Frontier.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("frontier.backend %q is not recognized", c.Frontier.Backend)
	}
	if c.Frontier.Backend == BackendSQLite && c.Frontier.Path == "" {
		return fmt.Errorf("frontier.path is required for the sqlite backend")
	}
	if c.Frontier.Backend == BackendPostgres && c.Frontier.DSN == "" {
		return fmt.Errorf("frontier.dsn is required for the postgres backend")
	}
	if c.Accept.AcceptRegex != "" {
		if _, err := regexp.Compile(c.Accept.AcceptRegex); err != nil {
			return fmt.Errorf("accept.accept_regex: %w", err)
		}
	}
	if c.Accept.RejectRegex != "" {
		if _, err := regexp.Compile(c.Accept.RejectRegex); err != nil {
			return fmt.Errorf("accept.reject_regex: %w", err)
		}
	}
	return nil
}

// SeedURLs parses and normalizes the configured seeds.
func (c Config) SeedURLs() ([]urlx.URLInfo, error) {
	seeds := make([]urlx.URLInfo, 0, len(c.Crawl.Seeds))
	for _, raw := range c.Crawl.Seeds {
		u, err := urlx.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse seed: %w", err)
		}
		seeds = append(seeds, u)
	}
	return seeds, nil
}
