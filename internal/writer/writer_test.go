package writer

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skreps/webgrab/internal/urlx"
)

func TestPathNamer(t *testing.T) {
	cases := []struct {
		name  string
		namer PathNamer
		url   string
		want  string
	}{
		{
			name:  "directory path with index",
			namer: PathNamer{Prefix: "out", UseDirs: true},
			url:   "http://a.test/docs/",
			want:  filepath.Join("out", "docs", "index.html"),
		},
		{
			name:  "flat naming",
			namer: PathNamer{Prefix: "out"},
			url:   "http://a.test/docs/page.html",
			want:  filepath.Join("out", "page.html"),
		},
		{
			name:  "host and protocol dirs",
			namer: PathNamer{Prefix: "out", UseDirs: true, HostDirs: true, ProtocolDirs: true},
			url:   "http://a.test/x/y.html",
			want:  filepath.Join("out", "http", "a.test", "x", "y.html"),
		},
		{
			name:  "cut dirs",
			namer: PathNamer{Prefix: "out", UseDirs: true, CutDirs: 1},
			url:   "http://a.test/skip/keep/page.html",
			want:  filepath.Join("out", "keep", "page.html"),
		},
		{
			name:  "query in file name",
			namer: PathNamer{Prefix: "out", UseDirs: true},
			url:   "http://a.test/search?q=1",
			want:  filepath.Join("out", "search?q=1"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.namer.Name(urlx.MustParse(tc.url)))
		})
	}
}

func sampleResource() Resource {
	return Resource{
		StatusLine: "HTTP/1.1 200 OK",
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<html>one</html>"),
	}
}

func TestOverwriteWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewOverwriteWriter(PathNamer{Prefix: dir}, Options{}, nil)
	u := urlx.MustParse("http://a.test/page.html")

	path, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	res := sampleResource()
	res.Body = []byte("<html>two</html>")
	again, err := w.Save(context.Background(), u, res)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>two</html>", string(data))
}

func TestIgnoreWriterSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	w := NewIgnoreWriter(PathNamer{Prefix: dir}, Options{}, nil)
	u := urlx.MustParse("http://a.test/page.html")

	path, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	skipped, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)
	assert.Empty(t, skipped, "existing file must be left alone")
}

func TestAntiClobberWriterRenames(t *testing.T) {
	dir := t.TempDir()
	w := NewAntiClobberWriter(PathNamer{Prefix: dir}, Options{}, nil)
	u := urlx.MustParse("http://a.test/page.html")

	first, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)
	second, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)
	third, err := w.Save(context.Background(), u, sampleResource())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "page.html"), first)
	assert.Equal(t, filepath.Join(dir, "page.html.1"), second)
	assert.Equal(t, filepath.Join(dir, "page.html.2"), third)
}

func TestTimestampWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewTimestampWriter(PathNamer{Prefix: dir}, Options{}, nil)
	u := urlx.MustParse("http://a.test/page.html")

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	res := sampleResource()
	res.Headers.Set("Last-Modified", old.Format(http.TimeFormat))

	path, err := w.Save(context.Background(), u, res)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "mtime should come from Last-Modified")

	// Server copy unchanged: skip.
	skipped, err := w.Save(context.Background(), u, res)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	// Server copy newer: rewrite.
	res.Headers.Set("Last-Modified", old.Add(24*time.Hour).Format(http.TimeFormat))
	rewritten, err := w.Save(context.Background(), u, res)
	require.NoError(t, err)
	assert.NotEmpty(t, rewritten)
}

func TestSaveHeadersOption(t *testing.T) {
	dir := t.TempDir()
	w := NewOverwriteWriter(PathNamer{Prefix: dir}, Options{SaveHeaders: true}, nil)

	path, err := w.Save(context.Background(), urlx.MustParse("http://a.test/p"), sampleResource())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, string(data), "Content-Type: text/html\r\n")
	assert.Contains(t, string(data), "<html>one</html>")
}
