package scrape

import (
	"regexp"
	"strings"

	"github.com/skreps/webgrab/internal/urlx"
)

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)

// CSSScraper extracts url(...) and @import references from stylesheets.
// Everything a stylesheet references is a page requisite.
type CSSScraper struct{}

// NewCSSScraper builds the scraper.
func NewCSSScraper() *CSSScraper { return &CSSScraper{} }

// Scrapes implements Scraper.
func (*CSSScraper) Scrapes(contentType string) bool {
	return mediaType(contentType) == "text/css"
}

// Scrape implements Scraper.
func (*CSSScraper) Scrape(body []byte, _ string, base urlx.URLInfo) ([]Link, error) {
	text := string(body)
	var links []Link
	for _, pattern := range []*regexp.Regexp{cssURLPattern, cssImportPattern} {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			raw := strings.TrimSpace(match[1])
			if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
				continue
			}
			resolved, err := base.Resolve(raw)
			if err != nil {
				continue
			}
			links = append(links, Link{URL: resolved, Requisite: true})
		}
	}
	return links, nil
}
