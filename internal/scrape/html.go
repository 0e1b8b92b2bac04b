package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/skreps/webgrab/internal/urlx"
)

// tagAttr maps an element name to the attribute carrying its URL and
// whether that reference is a page requisite.
type tagAttr struct {
	attr      string
	requisite bool
}

var htmlTags = map[string]tagAttr{
	"a":      {attr: "href"},
	"area":   {attr: "href"},
	"frame":  {attr: "src"},
	"iframe": {attr: "src"},
	"img":    {attr: "src", requisite: true},
	"script": {attr: "src", requisite: true},
	"embed":  {attr: "src", requisite: true},
	"source": {attr: "src", requisite: true},
	"link":   {attr: "href", requisite: true},
}

// HTMLScraper extracts links from HTML documents. Followed and ignored
// tag lists narrow which elements contribute candidates; an empty
// followed list follows every known tag.
type HTMLScraper struct {
	followed map[string]struct{}
	ignored  map[string]struct{}
}

// NewHTMLScraper builds the scraper from optional tag lists.
func NewHTMLScraper(followedTags, ignoredTags []string) *HTMLScraper {
	return &HTMLScraper{
		followed: tagSet(followedTags),
		ignored:  tagSet(ignoredTags),
	}
}

// Scrapes implements Scraper.
func (s *HTMLScraper) Scrapes(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "text/html" || mt == "application/xhtml+xml" || mt == ""
}

// Scrape implements Scraper. The body is decoded to UTF-8 using the
// charset hinted by contentType or sniffed from the bytes.
func (s *HTMLScraper) Scrape(body []byte, contentType string, base urlx.URLInfo) ([]Link, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// <base href> shifts resolution for the whole document.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := base.Resolve(href); err == nil {
			base = resolved
		}
	}

	var links []Link
	for tag, spec := range htmlTags {
		if s.skip(tag) {
			continue
		}
		doc.Find(tag + "[" + spec.attr + "]").Each(func(_ int, sel *goquery.Selection) {
			raw, _ := sel.Attr(spec.attr)
			if !followable(raw) {
				return
			}
			resolved, err := base.Resolve(raw)
			if err != nil {
				return
			}
			links = append(links, Link{URL: resolved, Requisite: spec.requisite})
		})
	}
	return links, nil
}

func (s *HTMLScraper) skip(tag string) bool {
	if _, bad := s.ignored[tag]; bad {
		return true
	}
	if len(s.followed) == 0 {
		return false
	}
	_, ok := s.followed[tag]
	return !ok
}

func followable(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	lower := strings.ToLower(raw)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
