package recorder

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skreps/webgrab/internal/urlx"
)

const warcTimeFormat = "2006-01-02T15:04:05Z"

// WARCConfig controls the archival container writer.
type WARCConfig struct {
	// Path is the container file ("crawl.warc" or "crawl.warc.gz").
	Path string
	// Compress wraps each record in its own gzip member, the standard
	// member-per-record layout that keeps the file seekable.
	Compress bool
	// Appending reopens an existing container and appends; prior
	// records are never touched.
	Appending bool
	// Software names the crawler in the warcinfo record.
	Software string
	// ExtraFields are run-level name/value pairs stored in warcinfo.
	ExtraFields [][2]string
}

// WARCRecorder writes one request and one response record per fetch
// transcript into an append-only WARC container.
type WARCRecorder struct {
	cfg  WARCConfig
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewWARC opens (or appends to) the container and writes a warcinfo
// record describing this run.
func NewWARC(cfg WARCConfig) (*WARCRecorder, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Appending {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(cfg.Path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open warc %s: %w", cfg.Path, err)
	}

	r := &WARCRecorder{cfg: cfg, file: file, now: time.Now}
	if err := r.writeWarcinfo(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// Record implements Recorder. Failed fetches with no response produce
// only a request record.
func (r *WARCRecorder) Record(_ context.Context, t Transcript) error {
	reqID := "<urn:uuid:" + uuid.NewString() + ">"
	reqBlock := requestBlock(t)
	reqHeaders := [][2]string{
		{"WARC-Type", "request"},
		{"WARC-Record-ID", reqID},
		{"WARC-Date", r.now().UTC().Format(warcTimeFormat)},
		{"WARC-Target-URI", t.URL.URL},
		{"WARC-Block-Digest", blockDigest(reqBlock)},
		{"Content-Type", "application/http;msgtype=request"},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeRecord(reqHeaders, reqBlock); err != nil {
		return err
	}

	if t.StatusCode == 0 {
		return nil
	}
	respBlock := responseBlock(t)
	respHeaders := [][2]string{
		{"WARC-Type", "response"},
		{"WARC-Record-ID", "<urn:uuid:" + uuid.NewString() + ">"},
		{"WARC-Date", r.now().UTC().Format(warcTimeFormat)},
		{"WARC-Target-URI", t.URL.URL},
		{"WARC-Concurrent-To", reqID},
		{"WARC-Block-Digest", blockDigest(respBlock)},
		{"Content-Type", "application/http;msgtype=response"},
	}
	return r.writeRecord(respHeaders, respBlock)
}

// Close flushes and closes the container file.
func (r *WARCRecorder) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close warc: %w", err)
	}
	return nil
}

func (r *WARCRecorder) writeWarcinfo() error {
	software := r.cfg.Software
	if software == "" {
		software = "webgrab"
	}
	var body bytes.Buffer
	fmt.Fprintf(&body, "software: %s\r\n", software)
	body.WriteString("format: WARC File Format 1.0\r\n")
	for _, field := range r.cfg.ExtraFields {
		fmt.Fprintf(&body, "%s: %s\r\n", field[0], field[1])
	}

	headers := [][2]string{
		{"WARC-Type", "warcinfo"},
		{"WARC-Record-ID", "<urn:uuid:" + uuid.NewString() + ">"},
		{"WARC-Date", r.now().UTC().Format(warcTimeFormat)},
		{"Content-Type", "application/warc-fields"},
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeRecord(headers, body.Bytes())
}

func (r *WARCRecorder) writeRecord(headers [][2]string, block []byte) error {
	var record bytes.Buffer
	record.WriteString("WARC/1.0\r\n")
	for _, h := range headers {
		record.WriteString(h[0])
		record.WriteString(": ")
		record.WriteString(h[1])
		record.WriteString("\r\n")
	}
	record.WriteString("Content-Length: " + strconv.Itoa(len(block)) + "\r\n\r\n")
	record.Write(block)
	record.WriteString("\r\n\r\n")

	var out io.Writer = r.file
	var gz *gzip.Writer
	if r.cfg.Compress {
		gz = gzip.NewWriter(r.file)
		out = gz
	}
	if _, err := out.Write(record.Bytes()); err != nil {
		return fmt.Errorf("write warc record: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("flush warc gzip member: %w", err)
		}
	}
	return nil
}

func requestBlock(t Transcript) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", t.Method, requestTarget(t.URL))
	fmt.Fprintf(&b, "Host: %s\r\n", t.URL.Host)
	writeHeaders(&b, t.RequestHeaders)
	b.WriteString("\r\n")
	return b.Bytes()
}

func responseBlock(t Transcript) []byte {
	var b bytes.Buffer
	b.WriteString(t.StatusLine)
	b.WriteString("\r\n")
	writeHeaders(&b, t.ResponseHeaders)
	b.WriteString("\r\n")
	b.Write(t.Body)
	return b.Bytes()
}

// blockDigest produces the labelled digest readers use to verify a
// record block, in the conventional sha1/base32 form.
func blockDigest(block []byte) string {
	sum := sha1.Sum(block)
	return "sha1:" + base32.StdEncoding.EncodeToString(sum[:])
}

func requestTarget(u urlx.URLInfo) string {
	target := u.Path
	if target == "" {
		target = "/"
	}
	if u.Query != "" {
		target += "?" + u.Query
	}
	return target
}

func writeHeaders(b *bytes.Buffer, headers map[string][]string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range headers[name] {
			fmt.Fprintf(b, "%s: %s\r\n", name, value)
		}
	}
}
