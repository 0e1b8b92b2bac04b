// Package filter implements the URL eligibility pipeline. Each filter is
// a pure predicate over a candidate URL and its frontier entry; a URL is
// fetched only when every configured filter accepts it.
package filter

import (
	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/urlx"
)

// Filter accepts or rejects a URL. Implementations must be side-effect
// free so the pipeline can short-circuit in any order.
type Filter interface {
	Name() string
	Test(u urlx.URLInfo, e frontier.Entry) bool
}

// Pipeline composes filters with logical AND.
type Pipeline struct {
	filters []Filter
}

// NewPipeline builds a pipeline; nil filters are skipped.
func NewPipeline(filters ...Filter) *Pipeline {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	return &Pipeline{filters: kept}
}

// Test returns true when every filter accepts u. On rejection the name
// of the first failing filter is returned for diagnostics.
func (p *Pipeline) Test(u urlx.URLInfo, e frontier.Entry) (bool, string) {
	for _, f := range p.filters {
		if !f.Test(u, e) {
			return false, f.Name()
		}
	}
	return true, ""
}
