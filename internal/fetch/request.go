package fetch

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/skreps/webgrab/internal/urlx"
)

// RequestFactory stamps every outgoing request with the caller-supplied
// identity headers. Per-request headers (Referer) layer on top of the
// fixed set.
type RequestFactory struct {
	UserAgent string
	// Headers are extra fixed headers applied to every request.
	Headers http.Header
}

// New builds a GET request for u. referrer is the normalized URL of the
// discovering page, empty for seeds.
func (f *RequestFactory) New(u urlx.URLInfo, referrer string) (*http.Request, error) {
	parsed, err := url.Parse(u.URL)
	if err != nil {
		return nil, fmt.Errorf("parse request url %q: %w", u.URL, err)
	}
	req := &http.Request{
		Method:     http.MethodGet,
		URL:        parsed,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       parsed.Host,
		Header:     make(http.Header),
	}
	for name, values := range f.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	if referrer != "" {
		req.Header.Set("Referer", referrer)
	}
	req.Header.Set("Accept", "*/*")
	return req, nil
}
