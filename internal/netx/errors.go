// Package netx implements the crawl transport: DNS resolution with
// address-family policy, single keep-alive HTTP connections, and
// per-host connection pools with a hard cap on simultaneous conns.
package netx

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ResolveError is a DNS failure for a host. Whether it is retried is the
// caller's policy decision.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ConnectError is a failure to establish a TCP or TLS connection.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a network or deadline timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
