// Package urlx parses URL strings into canonical, comparable records.
// Every URL that enters the frontier, the filter pipeline, or the
// recorder goes through Parse first so that equality checks and dedup
// operate on a single normalized form.
package urlx

import (
	"fmt"
	"net/url"
	"strings"
)

// URLInfo is an immutable, normalized view of a URL. Equality across the
// crawler is equality of the URL field.
type URLInfo struct {
	// URL is the full normalized string form.
	URL    string
	Scheme string
	Host   string
	Port   string
	// Path is the escaped path, "/" when the original had none.
	Path  string
	Query string
}

// Parse normalizes raw into a URLInfo. Normalization lowercases the
// scheme and host, strips default ports, drops the fragment, sorts query
// parameters, and ensures a non-empty path. A missing scheme defaults to
// http so bare hostnames from input files are accepted.
func Parse(raw string) (URLInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URLInfo{}, fmt.Errorf("parse url: empty string")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URLInfo{}, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return URLInfo{}, fmt.Errorf("parse url %q: missing host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Remove default ports so http://a.test:80/ and http://a.test/ dedup.
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.Path == "" {
		u.Path = "/"
	}

	// Sort query parameters for a stable string form.
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return URLInfo{
		URL:    u.String(),
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   portOrDefault(u),
		Path:   u.EscapedPath(),
		Query:  u.RawQuery,
	}, nil
}

// MustParse is a test helper; it panics on malformed input.
func MustParse(raw string) URLInfo {
	info, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return info
}

// Resolve interprets ref relative to base and normalizes the result.
func (i URLInfo) Resolve(ref string) (URLInfo, error) {
	base, err := url.Parse(i.URL)
	if err != nil {
		return URLInfo{}, fmt.Errorf("parse base url %q: %w", i.URL, err)
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return URLInfo{}, fmt.Errorf("parse ref url %q: %w", ref, err)
	}
	return Parse(base.ResolveReference(parsed).String())
}

// HostPort returns host:port suitable for dialing.
func (i URLInfo) HostPort() string {
	return i.Host + ":" + i.Port
}

// IsZero reports whether the record came from the zero value rather than Parse.
func (i URLInfo) IsZero() bool {
	return i.URL == ""
}

func (i URLInfo) String() string {
	return i.URL
}

func portOrDefault(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
