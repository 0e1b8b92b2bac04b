package writer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/skreps/webgrab/internal/urlx"
)

// Resource is the part of a fetch result the writer persists.
type Resource struct {
	// StatusLine is the raw response status ("HTTP/1.1 200 OK").
	StatusLine string
	Headers    http.Header
	Body       []byte
}

// Writer persists one fetched resource. Save returns the path written,
// or "" when the clobber policy decided to skip.
type Writer interface {
	Save(ctx context.Context, u urlx.URLInfo, res Resource) (string, error)
}

// Options are shared by all file-writing policies.
type Options struct {
	// SaveHeaders prepends the status line and headers to the file.
	SaveHeaders bool
	// ServerTimestamps sets the file mtime from Last-Modified.
	ServerTimestamps bool
}

// NullWriter discards everything (--delete-after).
type NullWriter struct{}

func (NullWriter) Save(context.Context, urlx.URLInfo, Resource) (string, error) {
	return "", nil
}

type fileWriter struct {
	namer  PathNamer
	opts   Options
	logger *zap.Logger
}

func (w fileWriter) write(ctx context.Context, path string, res Resource) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	payload := res.Body
	if w.opts.SaveHeaders {
		payload = appendHeaders(res, payload)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if w.opts.ServerTimestamps {
		if mtime, ok := lastModified(res.Headers); ok {
			if err := os.Chtimes(path, mtime, mtime); err != nil {
				w.logger.Debug("Failed to apply server timestamp", zap.String("path", path), zap.Error(err))
			}
		}
	}
	return nil
}

func appendHeaders(res Resource, body []byte) []byte {
	var head []byte
	head = append(head, res.StatusLine...)
	head = append(head, '\r', '\n')
	for name, values := range res.Headers {
		for _, v := range values {
			head = append(head, name...)
			head = append(head, ':', ' ')
			head = append(head, v...)
			head = append(head, '\r', '\n')
		}
	}
	head = append(head, '\r', '\n')
	return append(head, body...)
}

func lastModified(h http.Header) (time.Time, bool) {
	raw := h.Get("Last-Modified")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OverwriteWriter always writes, replacing existing files.
type OverwriteWriter struct{ fileWriter }

// NewOverwriteWriter builds the overwrite policy.
func NewOverwriteWriter(namer PathNamer, opts Options, logger *zap.Logger) *OverwriteWriter {
	return &OverwriteWriter{fileWriter{namer: namer, opts: opts, logger: orNop(logger)}}
}

// Save implements Writer.
func (w *OverwriteWriter) Save(ctx context.Context, u urlx.URLInfo, res Resource) (string, error) {
	path := w.namer.Name(u)
	if err := w.write(ctx, path, res); err != nil {
		return "", err
	}
	return path, nil
}

// IgnoreWriter skips resources whose file already exists.
type IgnoreWriter struct{ fileWriter }

// NewIgnoreWriter builds the ignore-existing policy.
func NewIgnoreWriter(namer PathNamer, opts Options, logger *zap.Logger) *IgnoreWriter {
	return &IgnoreWriter{fileWriter{namer: namer, opts: opts, logger: orNop(logger)}}
}

// Save implements Writer.
func (w *IgnoreWriter) Save(ctx context.Context, u urlx.URLInfo, res Resource) (string, error) {
	path := w.namer.Name(u)
	if _, err := os.Stat(path); err == nil {
		w.logger.Debug("File exists; not overwriting", zap.String("path", path))
		return "", nil
	}
	if err := w.write(ctx, path, res); err != nil {
		return "", err
	}
	return path, nil
}

// TimestampWriter rewrites a file only when the server copy is newer
// than the local mtime.
type TimestampWriter struct{ fileWriter }

// NewTimestampWriter builds the timestamp-conditional policy.
func NewTimestampWriter(namer PathNamer, opts Options, logger *zap.Logger) *TimestampWriter {
	opts.ServerTimestamps = true
	return &TimestampWriter{fileWriter{namer: namer, opts: opts, logger: orNop(logger)}}
}

// Save implements Writer.
func (w *TimestampWriter) Save(ctx context.Context, u urlx.URLInfo, res Resource) (string, error) {
	path := w.namer.Name(u)
	if info, err := os.Stat(path); err == nil {
		if serverTime, ok := lastModified(res.Headers); ok && !serverTime.After(info.ModTime()) {
			w.logger.Debug("Local copy up to date", zap.String("path", path))
			return "", nil
		}
	}
	if err := w.write(ctx, path, res); err != nil {
		return "", err
	}
	return path, nil
}

// AntiClobberWriter never replaces an existing file; it appends .1, .2,
// ... until a free name is found.
type AntiClobberWriter struct{ fileWriter }

// NewAntiClobberWriter builds the rename-to-avoid-clobber policy.
func NewAntiClobberWriter(namer PathNamer, opts Options, logger *zap.Logger) *AntiClobberWriter {
	return &AntiClobberWriter{fileWriter{namer: namer, opts: opts, logger: orNop(logger)}}
}

// Save implements Writer.
func (w *AntiClobberWriter) Save(ctx context.Context, u urlx.URLInfo, res Resource) (string, error) {
	path := w.namer.Name(u)
	candidate := path
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s.%d", path, i)
	}
	if err := w.write(ctx, candidate, res); err != nil {
		return "", err
	}
	return candidate, nil
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
