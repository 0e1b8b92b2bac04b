package filter

import (
	"regexp"
	"strings"

	"github.com/skreps/webgrab/internal/frontier"
	"github.com/skreps/webgrab/internal/urlx"
)

// SchemeFilter rejects anything that is not plain HTTP or HTTPS.
type SchemeFilter struct{}

func (SchemeFilter) Name() string { return "scheme" }

func (SchemeFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// DomainFilter accepts hosts inside the allowed domain set (or any of
// its subdomains) and outside the excluded set. An empty allowed set
// accepts everything not excluded.
type DomainFilter struct {
	allowed  []string
	excluded []string
}

func NewDomainFilter(allowed, excluded []string) *DomainFilter {
	return &DomainFilter{allowed: lowerAll(allowed), excluded: lowerAll(excluded)}
}

func (*DomainFilter) Name() string { return "domain" }

func (f *DomainFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	if matchDomain(u.Host, f.excluded) {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	return matchDomain(u.Host, f.allowed)
}

// HostnameFilter applies exact-hostname allow/deny lists, independent of
// the suffix matching in DomainFilter.
type HostnameFilter struct {
	allowed  map[string]struct{}
	excluded map[string]struct{}
}

func NewHostnameFilter(allowed, excluded []string) *HostnameFilter {
	return &HostnameFilter{allowed: toSet(allowed), excluded: toSet(excluded)}
}

func (*HostnameFilter) Name() string { return "hostname" }

func (f *HostnameFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	if _, bad := f.excluded[u.Host]; bad {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[u.Host]
	return ok
}

// TriesFilter rejects entries whose recorded tries reached the maximum.
// A zero maximum means unlimited.
type TriesFilter struct {
	max int
}

func NewTriesFilter(max int) *TriesFilter { return &TriesFilter{max: max} }

func (*TriesFilter) Name() string { return "tries" }

func (f *TriesFilter) Test(_ urlx.URLInfo, e frontier.Entry) bool {
	return f.max == 0 || e.Tries < f.max
}

// RecursiveFilter rejects non-seed URLs when recursion is off, except
// page requisites when those are enabled.
type RecursiveFilter struct {
	recursive  bool
	requisites bool
}

func NewRecursiveFilter(recursive, pageRequisites bool) *RecursiveFilter {
	return &RecursiveFilter{recursive: recursive, requisites: pageRequisites}
}

func (*RecursiveFilter) Name() string { return "recursive" }

func (f *RecursiveFilter) Test(_ urlx.URLInfo, e frontier.Entry) bool {
	if f.recursive || e.Level == 0 {
		return true
	}
	return f.requisites && e.Requisite
}

// LevelFilter caps link depth. Zero means unlimited.
type LevelFilter struct {
	max int
}

func NewLevelFilter(max int) *LevelFilter { return &LevelFilter{max: max} }

func (*LevelFilter) Name() string { return "level" }

func (f *LevelFilter) Test(_ urlx.URLInfo, e frontier.Entry) bool {
	return f.max == 0 || e.Level <= f.max
}

// SpanHostsFilter rejects cross-host links unless spanning is enabled.
// Seed hosts are always in scope.
type SpanHostsFilter struct {
	seedHosts map[string]struct{}
	enabled   bool
}

func NewSpanHostsFilter(seeds []urlx.URLInfo, enabled bool) *SpanHostsFilter {
	hosts := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		hosts[s.Host] = struct{}{}
	}
	return &SpanHostsFilter{seedHosts: hosts, enabled: enabled}
}

func (*SpanHostsFilter) Name() string { return "span-hosts" }

func (f *SpanHostsFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	if f.enabled {
		return true
	}
	_, ok := f.seedHosts[u.Host]
	return ok
}

// RegexFilter accepts URLs matching the accept pattern (when set) and
// not matching the reject pattern (when set).
type RegexFilter struct {
	accept *regexp.Regexp
	reject *regexp.Regexp
}

func NewRegexFilter(accept, reject *regexp.Regexp) *RegexFilter {
	return &RegexFilter{accept: accept, reject: reject}
}

func (*RegexFilter) Name() string { return "regex" }

func (f *RegexFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	if f.accept != nil && !f.accept.MatchString(u.URL) {
		return false
	}
	if f.reject != nil && f.reject.MatchString(u.URL) {
		return false
	}
	return true
}

// DirectoryFilter applies path-prefix include/exclude lists.
type DirectoryFilter struct {
	include []string
	exclude []string
}

func NewDirectoryFilter(include, exclude []string) *DirectoryFilter {
	return &DirectoryFilter{include: normalizeDirs(include), exclude: normalizeDirs(exclude)}
}

func (*DirectoryFilter) Name() string { return "directory" }

func (f *DirectoryFilter) Test(u urlx.URLInfo, _ frontier.Entry) bool {
	for _, dir := range f.exclude {
		if strings.HasPrefix(u.Path, dir) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, dir := range f.include {
		if strings.HasPrefix(u.Path, dir) {
			return true
		}
	}
	return false
}

// ParentFilter rejects links that ascend above any seed's directory.
// Page requisites are exempt so a page can still render.
type ParentFilter struct {
	seedDirs []string
}

func NewParentFilter(seeds []urlx.URLInfo) *ParentFilter {
	dirs := make([]string, 0, len(seeds))
	for _, s := range seeds {
		dirs = append(dirs, parentDir(s.Path))
	}
	return &ParentFilter{seedDirs: dirs}
}

func (*ParentFilter) Name() string { return "parent" }

func (f *ParentFilter) Test(u urlx.URLInfo, e frontier.Entry) bool {
	if e.Requisite {
		return true
	}
	for _, dir := range f.seedDirs {
		if strings.HasPrefix(u.Path, dir) {
			return true
		}
	}
	return false
}

func parentDir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx+1]
}

func normalizeDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !strings.HasPrefix(d, "/") {
			d = "/" + d
		}
		if !strings.HasSuffix(d, "/") {
			d += "/"
		}
		out = append(out, d)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, s := range lowerAll(in) {
		set[s] = struct{}{}
	}
	return set
}

func matchDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
