// Package waiter computes politeness and backoff delays. State is kept
// per host so one slow or failing host never throttles the others.
package waiter

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// increment is added to the delay for each consecutive failure.
	increment = time.Second
	// hostCacheSize bounds per-host failure tracking for very wide crawls.
	hostCacheSize = 8192
)

// Waiter tracks consecutive failures per host and derives the delay
// before the next request to that host: a base wait, optionally
// randomized, escalating linearly after failures and capped at max.
type Waiter struct {
	base   time.Duration
	max    time.Duration
	random bool

	mu       sync.Mutex
	failures *lru.Cache[string, int]
}

// New builds a Waiter. base is the politeness delay between requests,
// max caps the escalated retry delay (0 disables the cap), random
// applies a 0.5x-1.5x jitter to the base component.
func New(base time.Duration, random bool, max time.Duration) (*Waiter, error) {
	cache, err := lru.New[string, int](hostCacheSize)
	if err != nil {
		return nil, err
	}
	return &Waiter{base: base, max: max, random: random, failures: cache}, nil
}

// Delay returns the wait before the next request to host. It is
// non-decreasing across consecutive Failed calls for the same host.
func (w *Waiter) Delay(host string) time.Duration {
	w.mu.Lock()
	n, _ := w.failures.Get(host)
	w.mu.Unlock()

	delay := w.base
	if w.random {
		delay = jitter(delay)
	}
	delay += time.Duration(n) * increment
	if w.max > 0 && delay > w.max {
		delay = w.max
	}
	return delay
}

// Failed records a failed attempt against host, escalating future delays.
func (w *Waiter) Failed(host string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, _ := w.failures.Get(host)
	w.failures.Add(host, n+1)
}

// Succeeded resets host back to the base delay.
func (w *Waiter) Succeeded(host string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures.Remove(host)
}

// Wait sleeps for Delay(host), returning early if ctx finishes.
func (w *Waiter) Wait(ctx context.Context, host string) error {
	return Sleep(ctx, w.Delay(host))
}

// Sleep pauses for d, suspending only the calling goroutine.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter maps d to a random duration in [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(d)))
	if err != nil {
		return d
	}
	return d/2 + time.Duration(n.Int64())
}
