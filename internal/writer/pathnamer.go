// Package writer decides where a fetched resource lands on disk and how
// collisions with existing files are handled.
package writer

import (
	"path/filepath"
	"strings"

	"github.com/skreps/webgrab/internal/urlx"
)

// PathNamer derives a deterministic local path from a URL.
type PathNamer struct {
	// Prefix is the output directory root.
	Prefix string
	// IndexName replaces paths that end in a slash (default index.html).
	IndexName string
	// UseDirs mirrors the URL's directory structure; when false every
	// resource flattens to a single file name under Prefix.
	UseDirs bool
	// CutDirs drops this many leading path components.
	CutDirs int
	// ProtocolDirs adds a scheme directory (http/, https/).
	ProtocolDirs bool
	// HostDirs adds a hostname directory.
	HostDirs bool
}

// Name returns the local path for u.
func (n PathNamer) Name(u urlx.URLInfo) string {
	index := n.IndexName
	if index == "" {
		index = "index.html"
	}

	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	file := segments[len(segments)-1]
	dirs := segments[:len(segments)-1]
	if file == "" {
		file = index
	}
	if u.Query != "" {
		file += "?" + u.Query
	}
	file = sanitize(file)

	if !n.UseDirs {
		return filepath.Join(n.Prefix, file)
	}

	if n.CutDirs > 0 && n.CutDirs < len(dirs) {
		dirs = dirs[n.CutDirs:]
	} else if n.CutDirs >= len(dirs) {
		dirs = nil
	}

	parts := make([]string, 0, len(dirs)+3)
	parts = append(parts, n.Prefix)
	if n.ProtocolDirs {
		parts = append(parts, u.Scheme)
	}
	if n.HostDirs {
		parts = append(parts, sanitize(hostDir(u)))
	}
	for _, d := range dirs {
		parts = append(parts, sanitize(d))
	}
	parts = append(parts, file)
	return filepath.Join(parts...)
}

func hostDir(u urlx.URLInfo) string {
	if (u.Scheme == "http" && u.Port != "80") || (u.Scheme == "https" && u.Port != "443") {
		return u.Host + ":" + u.Port
	}
	return u.Host
}

var unsafeChars = strings.NewReplacer(
	"\x00", "%00",
	"\\", "%5C",
	":", "%3A",
	"*", "%2A",
	"\"", "%22",
	"<", "%3C",
	">", "%3E",
	"|", "%7C",
)

func sanitize(s string) string {
	s = unsafeChars.Replace(s)
	// A bare ".." must never escape the prefix.
	if s == ".." || s == "." {
		return "_"
	}
	return s
}
