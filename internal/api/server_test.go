package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/urlx"
)

func newTestServer(t *testing.T) (*Server, *frontier.MemoryTable) {
	t.Helper()
	table := frontier.NewMemoryTable(3)
	reg := prometheus.NewRegistry()
	return NewServer(table, reg, zap.NewNop()), table
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsFrontierCounts(t *testing.T) {
	t.Parallel()

	server, table := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, table.Add(ctx, frontier.Seed([]urlx.URLInfo{
		urlx.MustParse("http://a.test/1"),
		urlx.MustParse("http://a.test/2"),
	})))
	entry, err := table.GetAndClaim(ctx)
	require.NoError(t, err)
	require.NoError(t, table.SetDone(ctx, entry.URL))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var counts map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, int64(1), counts["todo"])
	assert.Equal(t, int64(1), counts["done"])
	assert.Equal(t, int64(0), counts["in_progress"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	table := frontier.NewMemoryTable(1)
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "webgrab_test_total", Help: "test"})
	require.NoError(t, reg.Register(counter))
	counter.Inc()

	server := NewServer(table, reg, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webgrab_test_total 1")
}
