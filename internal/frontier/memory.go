package frontier

import (
	"context"
	"sync"
)

// MemoryTable is an in-memory Table used for tests and --no-database
// runs. It keeps the same atomicity contract as the durable backends but
// loses all state when the process exits.
type MemoryTable struct {
	mu       sync.Mutex
	maxTries int
	entries  map[string]*Entry
	queue    []string
}

// NewMemoryTable builds an empty table. maxTries bounds the coarse
// per-URL retry; values below 1 mean a single attempt.
func NewMemoryTable(maxTries int) *MemoryTable {
	if maxTries < 1 {
		maxTries = 1
	}
	return &MemoryTable{
		maxTries: maxTries,
		entries:  make(map[string]*Entry),
	}
}

// Add implements Table.
func (t *MemoryTable) Add(_ context.Context, candidates []Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range candidates {
		key := c.URL.URL
		if _, ok := t.entries[key]; ok {
			continue
		}
		t.entries[key] = &Entry{
			URL:           key,
			Status:        StatusTodo,
			Level:         c.Level,
			Referrer:      c.Referrer,
			Requisite:     c.Requisite,
			RedirectDepth: c.RedirectDepth,
		}
		t.queue = append(t.queue, key)
	}
	return nil
}

// GetAndClaim implements Table. Claim order is FIFO over insertion so
// newly discovered URLs cannot starve older ones.
func (t *MemoryTable) GetAndClaim(_ context.Context) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.queue) > 0 {
		key := t.queue[0]
		t.queue = t.queue[1:]
		e := t.entries[key]
		if e == nil || e.Status != StatusTodo {
			continue
		}
		e.Status = StatusInProgress
		return *e, nil
	}
	return Entry{}, ErrEmpty
}

// SetDone implements Table.
func (t *MemoryTable) SetDone(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[url]; ok {
		e.Status = StatusDone
	}
	return nil
}

// SetError implements Table.
func (t *MemoryTable) SetError(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[url]
	if !ok {
		return nil
	}
	e.Tries++
	if e.Tries < t.maxTries {
		e.Status = StatusTodo
		t.queue = append(t.queue, url)
	} else {
		e.Status = StatusError
	}
	return nil
}

// Counts implements Table.
func (t *MemoryTable) Counts(_ context.Context) (Counts, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var c Counts
	for _, e := range t.entries {
		switch e.Status {
		case StatusTodo:
			c.Todo++
		case StatusInProgress:
			c.InProgress++
		case StatusDone:
			c.Done++
		case StatusError:
			c.Errored++
		}
	}
	return c, nil
}

// Close implements Table.
func (t *MemoryTable) Close() error { return nil }
