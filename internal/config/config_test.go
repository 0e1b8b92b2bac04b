package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Crawl.Recursive)
	assert.Equal(t, 3, cfg.Crawl.MaxTries)
	assert.Equal(t, 2, cfg.Crawl.Concurrent)
	assert.True(t, cfg.Crawl.Robots)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, "any", cfg.HTTP.PreferFamily)
	assert.Equal(t, ModeAntiClobber, cfg.Output.Mode)
	assert.Equal(t, BackendSQLite, cfg.Frontier.Backend)
	assert.True(t, cfg.WARC.Compress)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  seeds: ["http://example.com/"]
  level: 2
  concurrent: 8
  span_hosts: true
http:
  connect_timeout: 3s
  prefer_family: ipv4
  retry_connrefused: true
wait:
  base: 500ms
  random: true
output:
  dir: /tmp/crawl
  mode: timestamp
warc:
  file: crawl.warc.gz
  extra_fields:
    operator: archive-team
frontier:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"http://example.com/"}, cfg.Crawl.Seeds)
	assert.Equal(t, 2, cfg.Crawl.Level)
	assert.Equal(t, 8, cfg.Crawl.Concurrent)
	assert.True(t, cfg.Crawl.SpanHosts)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, "ipv4", cfg.HTTP.PreferFamily)
	assert.True(t, cfg.HTTP.RetryConnRefused)
	assert.Equal(t, 500*time.Millisecond, cfg.Wait.Base)
	assert.True(t, cfg.Wait.Random)
	assert.Equal(t, "timestamp", cfg.Output.Mode)
	assert.Equal(t, "crawl.warc.gz", cfg.WARC.File)
	assert.Equal(t, "archive-team", cfg.WARC.ExtraFields["operator"])
	assert.Equal(t, BackendMemory, cfg.Frontier.Backend)

	seeds, err := cfg.SeedURLs()
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "http://example.com/", seeds[0].URL)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Crawl.Seeds = []string{"http://example.com/"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no seeds",
			mutate:  func(c *Config) { c.Crawl.Seeds = nil },
			wantErr: "crawl.seeds",
		},
		{
			name:    "malformed seed",
			mutate:  func(c *Config) { c.Crawl.Seeds = []string{"http://%zz"} },
			wantErr: "invalid seed",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Crawl.Concurrent = 0 },
			wantErr: "crawl.concurrent",
		},
		{
			name:    "unknown family",
			mutate:  func(c *Config) { c.HTTP.PreferFamily = "ipv9" },
			wantErr: "prefer_family",
		},
		{
			name:    "unknown output mode",
			mutate:  func(c *Config) { c.Output.Mode = "shuffle" },
			wantErr: "output.mode",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Frontier.Backend = BackendPostgres },
			wantErr: "frontier.dsn",
		},
		{
			name:    "bad accept regex",
			mutate:  func(c *Config) { c.Accept.AcceptRegex = "(" },
			wantErr: "accept_regex",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())
}
