package netx

import (
	"context"
	"net"
	"sync"
	"time"
)

// Family selects an address family for resolution results.
type Family int

// Address families in preference order notation.
const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// LookupFunc resolves a hostname to IP addresses. The standard resolver
// satisfies it; tests inject their own.
type LookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver resolves hostnames filtered to an address-family preference,
// optionally rotating the returned order across calls to spread load
// over a host's addresses.
type Resolver struct {
	families []Family
	timeout  time.Duration
	rotate   bool
	lookup   LookupFunc

	mu       sync.Mutex
	rotation map[string]int
}

// NewResolver builds a Resolver. families is an ordered preference; an
// empty slice means IPv4 then IPv6. timeout bounds each lookup and
// surfaces as a ResolveError wrapping the deadline error.
func NewResolver(families []Family, timeout time.Duration, rotate bool) *Resolver {
	if len(families) == 0 {
		families = []Family{FamilyIPv4, FamilyIPv6}
	}
	return &Resolver{
		families: families,
		timeout:  timeout,
		rotate:   rotate,
		lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		},
		rotation: make(map[string]int),
	}
}

// WithLookup overrides the lookup function, for tests.
func (r *Resolver) WithLookup(fn LookupFunc) *Resolver {
	r.lookup = fn
	return r
}

// Resolve returns host's addresses ordered by family preference. IP
// literals bypass the lookup entirely.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IPAddr{{IP: ip}}, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, &ResolveError{Host: host, Err: err}
	}

	ordered := r.order(addrs)
	if len(ordered) == 0 {
		return nil, &ResolveError{Host: host, Err: errNoAddress{}}
	}
	if r.rotate {
		ordered = r.rotated(host, ordered)
	}
	return ordered, nil
}

func (r *Resolver) order(addrs []net.IPAddr) []net.IPAddr {
	ordered := make([]net.IPAddr, 0, len(addrs))
	for _, fam := range r.families {
		for _, addr := range addrs {
			v4 := addr.IP.To4() != nil
			if (fam == FamilyIPv4) == v4 {
				ordered = append(ordered, addr)
			}
		}
	}
	return ordered
}

func (r *Resolver) rotated(host string, addrs []net.IPAddr) []net.IPAddr {
	r.mu.Lock()
	offset := r.rotation[host]
	r.rotation[host] = offset + 1
	r.mu.Unlock()

	n := len(addrs)
	out := make([]net.IPAddr, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, addrs[(offset+i)%n])
	}
	return out
}

type errNoAddress struct{}

func (errNoAddress) Error() string { return "no address of requested family" }
