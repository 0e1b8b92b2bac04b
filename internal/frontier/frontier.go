// Package frontier implements the URL table: the durable set of every
// known URL with its crawl status. It is the crawl work queue; workers
// claim entries, process them, and finalize them through this package
// only, which enforces the status transition rules.
package frontier

import (
	"context"
	"errors"

	"github.com/skreps/webgrab/internal/urlx"
)

// Status is the lifecycle state of a frontier entry.
type Status string

// Status values persisted in the URL table.
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// ErrEmpty is returned by GetAndClaim when no todo entry remains.
var ErrEmpty = errors.New("frontier: no todo entries")

// Candidate is a URL offered to the table for admission. Requisite marks
// page requisites (images, scripts, stylesheets) which stay fetchable
// even when recursion is off.
type Candidate struct {
	URL       urlx.URLInfo
	Level     int
	Referrer  string
	Requisite bool
	// RedirectDepth counts how many redirect hops produced this
	// candidate; zero for directly discovered URLs.
	RedirectDepth int
}

// Entry is one row of the URL table. Level is link-distance from a seed;
// Referrer is the normalized URL of the page that discovered this one.
type Entry struct {
	URL           string
	Status        Status
	Tries         int
	Level         int
	Referrer      string
	Requisite     bool
	RedirectDepth int
}

// Counts is a status histogram over the whole table.
type Counts struct {
	Todo       int64
	InProgress int64
	Done       int64
	Errored    int64
}

// Drained reports whether no claimable or claimed work remains.
func (c Counts) Drained() bool {
	return c.Todo == 0 && c.InProgress == 0
}

// Table is the frontier contract shared by all backends.
//
// Add is idempotent: URLs already present in any status are ignored, so
// rediscovering a done URL never re-queues it. GetAndClaim atomically
// moves one todo entry to in_progress; it is the sole admission point
// into the pipeline and must never hand the same entry to two callers.
// SetError increments tries and re-queues the entry as todo while tries
// remain, otherwise finalizes it as error.
type Table interface {
	Add(ctx context.Context, candidates []Candidate) error
	GetAndClaim(ctx context.Context) (Entry, error)
	SetDone(ctx context.Context, url string) error
	SetError(ctx context.Context, url string) error
	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// Seed converts raw seed URLs into level-0 candidates.
func Seed(urls []urlx.URLInfo) []Candidate {
	candidates := make([]Candidate, 0, len(urls))
	for _, u := range urls {
		candidates = append(candidates, Candidate{URL: u, Level: 0})
	}
	return candidates
}
