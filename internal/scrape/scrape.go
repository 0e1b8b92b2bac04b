// Package scrape extracts candidate outbound URLs from fetched
// documents. Scrapers are black boxes to the rest of the pipeline: body
// bytes and a base URL in, a set of absolute candidates out.
package scrape

import (
	"strings"

	"github.com/skreps/webgrab/internal/urlx"
)

// Link is one extracted candidate. Requisite marks resources needed to
// render the page (images, scripts, stylesheets) as opposed to
// navigational links.
type Link struct {
	URL       urlx.URLInfo
	Requisite bool
}

// Scraper extracts links from one class of document.
type Scraper interface {
	// Scrapes reports whether this scraper understands contentType.
	Scrapes(contentType string) bool
	// Scrape returns the absolute candidate URLs found in body.
	Scrape(body []byte, contentType string, base urlx.URLInfo) ([]Link, error)
}

// ScrapeAll runs every matching scraper and merges results into a set
// keyed by normalized URL; a requisite classification wins over a plain
// link when both occur.
func ScrapeAll(scrapers []Scraper, body []byte, contentType string, base urlx.URLInfo) []Link {
	seen := make(map[string]int)
	var out []Link
	for _, s := range scrapers {
		if !s.Scrapes(contentType) {
			continue
		}
		links, err := s.Scrape(body, contentType, base)
		if err != nil {
			continue
		}
		for _, link := range links {
			if idx, ok := seen[link.URL.URL]; ok {
				if link.Requisite {
					out[idx].Requisite = true
				}
				continue
			}
			seen[link.URL.URL] = len(out)
			out = append(out, link)
		}
	}
	return out
}

func mediaType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
