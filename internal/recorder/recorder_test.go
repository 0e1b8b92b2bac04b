package recorder

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/urlx"
)

func sampleTranscript(t *testing.T, raw string) Transcript {
	t.Helper()
	u, err := urlx.Parse(raw)
	require.NoError(t, err)
	return Transcript{
		URL:            u,
		Method:         http.MethodGet,
		RequestHeaders: http.Header{"User-Agent": {"webgrab/1.0"}},
		StatusCode:     200,
		StatusLine:     "HTTP/1.1 200 OK",
		ResponseHeaders: http.Header{
			"Content-Type": {"text/html"},
		},
		Body:      []byte("<html>hello</html>"),
		Outcome:   OutcomeSuccess,
		Duration:  120 * time.Millisecond,
		FetchedAt: time.Now(),
	}
}

func TestWARCRecorderWritesRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawl.warc")
	rec, err := NewWARC(WARCConfig{
		Path:        path,
		Software:    "webgrab/1.0",
		ExtraFields: [][2]string{{"operator", "tester"}},
	})
	require.NoError(t, err)

	require.NoError(t, rec.Record(context.Background(), sampleTranscript(t, "http://example.com/page")))
	require.NoError(t, rec.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "WARC-Type: warcinfo")
	assert.Contains(t, text, "software: webgrab/1.0")
	assert.Contains(t, text, "operator: tester")
	assert.Contains(t, text, "WARC-Type: request")
	assert.Contains(t, text, "GET /page HTTP/1.1")
	assert.Contains(t, text, "Host: example.com")
	assert.Contains(t, text, "WARC-Type: response")
	assert.Contains(t, text, "WARC-Concurrent-To: <urn:uuid:")
	assert.Contains(t, text, "WARC-Block-Digest: sha1:")
	assert.Contains(t, text, "HTTP/1.1 200 OK")
	assert.Contains(t, text, "<html>hello</html>")
	assert.Equal(t, 3, strings.Count(text, "WARC/1.0\r\n"))
}

func TestWARCRecorderFailedFetchOmitsResponse(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawl.warc")
	rec, err := NewWARC(WARCConfig{Path: path})
	require.NoError(t, err)

	tr := sampleTranscript(t, "http://example.com/down")
	tr.StatusCode = 0
	tr.StatusLine = ""
	tr.ResponseHeaders = nil
	tr.Body = nil
	tr.Outcome = OutcomeError
	tr.Err = "connection refused"

	require.NoError(t, rec.Record(context.Background(), tr))
	require.NoError(t, rec.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARC-Type: request")
	assert.NotContains(t, string(data), "WARC-Type: response")
}

func TestWARCRecorderCompressedMembers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawl.warc.gz")
	rec, err := NewWARC(WARCConfig{Path: path, Compress: true})
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), sampleTranscript(t, "http://example.com/")))
	require.NoError(t, rec.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	// A multistream gzip reader must see all three records.
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count(data, []byte("WARC/1.0\r\n")))
}

func TestWARCRecorderAppendPreservesPriorRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawl.warc")

	first, err := NewWARC(WARCConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), sampleTranscript(t, "http://example.com/one")))
	require.NoError(t, first.Close(context.Background()))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := NewWARC(WARCConfig{Path: path, Appending: true})
	require.NoError(t, err)
	require.NoError(t, second.Record(context.Background(), sampleTranscript(t, "http://example.com/two")))
	require.NoError(t, second.Close(context.Background()))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(after, before), "appending must not rewrite prior records")
	assert.Contains(t, string(after), "http://example.com/two")
}

func TestPrintRecorder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := NewPrint(&buf)
	require.NoError(t, rec.Record(context.Background(), sampleTranscript(t, "http://example.com/a")))

	failed := sampleTranscript(t, "http://example.com/b")
	failed.StatusCode = 0
	failed.Err = "lookup failed"
	require.NoError(t, rec.Record(context.Background(), failed))

	out := buf.String()
	assert.Contains(t, out, "GET http://example.com/a")
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "error: lookup failed")
}

func TestProgressRecorderMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec, err := NewProgress(zap.NewNop(), reg)
	require.NoError(t, err)

	require.NoError(t, rec.Record(context.Background(), sampleTranscript(t, "http://example.com/")))

	failed := sampleTranscript(t, "http://example.com/down")
	failed.StatusCode = 0
	failed.Body = nil
	failed.Outcome = OutcomeError
	require.NoError(t, rec.Record(context.Background(), failed))

	require.Equal(t, 1.0, testutil.ToFloat64(rec.fetchTotal.WithLabelValues("example.com", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.fetchTotal.WithLabelValues("example.com", "error")))
	require.InDelta(t, 18.0, testutil.ToFloat64(rec.fetchBytes.WithLabelValues("example.com")), 1e-9)

	urls, bytesTotal := rec.Totals()
	assert.Equal(t, int64(2), urls)
	assert.Equal(t, int64(18), bytesTotal)
}

type stubRecorder struct {
	records   int
	closes    int
	recordErr error
	closeErr  error
}

func (s *stubRecorder) Record(context.Context, Transcript) error {
	s.records++
	return s.recordErr
}

func (s *stubRecorder) Close(context.Context) error {
	s.closes++
	return s.closeErr
}

func TestDemuxIsolatesSinkFailures(t *testing.T) {
	t.Parallel()

	bad := &stubRecorder{recordErr: errors.New("disk full"), closeErr: errors.New("disk full")}
	good := &stubRecorder{}
	demux := NewDemux(zap.NewNop(), bad, nil, good)

	require.NoError(t, demux.Record(context.Background(), sampleTranscript(t, "http://example.com/")))
	assert.Equal(t, 1, bad.records)
	assert.Equal(t, 1, good.records)

	err := demux.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, bad.closes)
	assert.Equal(t, 1, good.closes, "close must reach every sink")
}
