package netx

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/skreps/webgrab/internal/urlx"
)

// HostPool caps the number of simultaneously open connections to one
// host and reuses idle keep-alive connections. Acquire blocks only the
// calling goroutine while the cap is saturated.
type HostPool struct {
	dial func(ctx context.Context) (*Conn, error)
	sem  *semaphore.Weighted

	mu   sync.Mutex
	idle []*Conn
}

// NewHostPool builds a pool bounded at cap connections.
func NewHostPool(cap int, dial func(ctx context.Context) (*Conn, error)) *HostPool {
	if cap < 1 {
		cap = 1
	}
	return &HostPool{dial: dial, sem: semaphore.NewWeighted(int64(cap))}
}

// Acquire returns an idle connection or dials a new one once the
// per-host cap admits it.
func (p *HostPool) Acquire(ctx context.Context) (*Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if conn.Reusable() {
			p.mu.Unlock()
			return conn, nil
		}
		_ = conn.Close()
	}
	p.mu.Unlock()

	conn, err := p.dial(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return conn, nil
}

// Release returns conn to the idle set, or closes it when the transport
// signaled non-reusability.
func (p *HostPool) Release(conn *Conn) {
	if conn != nil {
		if conn.Reusable() {
			p.mu.Lock()
			p.idle = append(p.idle, conn)
			p.mu.Unlock()
		} else {
			_ = conn.Close()
		}
	}
	p.sem.Release(1)
}

// Close discards all idle connections.
func (p *HostPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.idle {
		_ = conn.Close()
	}
	p.idle = nil
}

// Pool maintains one HostPool per scheme://host:port key.
type Pool struct {
	cfg        DialConfig
	perHostCap int

	mu    sync.Mutex
	hosts map[string]*HostPool
}

// NewPool builds the top-level connection pool. perHostCap is the
// politeness bound on open connections per host, distinct from the
// engine's global concurrency bound.
func NewPool(cfg DialConfig, perHostCap int) *Pool {
	return &Pool{
		cfg:        cfg,
		perHostCap: perHostCap,
		hosts:      make(map[string]*HostPool),
	}
}

// For returns the HostPool for u's origin, creating it on first use.
func (p *Pool) For(u urlx.URLInfo) *HostPool {
	key := u.Scheme + "://" + u.HostPort()

	p.mu.Lock()
	defer p.mu.Unlock()
	if hp, ok := p.hosts[key]; ok {
		return hp
	}
	host, port, useTLS := u.Host, u.Port, u.Scheme == "https"
	hp := NewHostPool(p.perHostCap, func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, p.cfg, host, port, useTLS)
	})
	p.hosts[key] = hp
	return hp
}

// Close discards every idle connection in every host pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hp := range p.hosts {
		hp.Close()
	}
}
