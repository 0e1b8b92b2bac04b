package netx

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Conn is a single transport stream to one resolved address with an
// independent connect timeout (applied at dial) and read timeout
// (applied per exchange). After any I/O error the connection reports
// itself non-reusable and the pool discards it.
type Conn struct {
	raw         net.Conn
	reader      *bufio.Reader
	readTimeout time.Duration
	keepAlive   bool
	reusable    bool
}

// DialConfig carries the knobs shared by every dialed connection.
type DialConfig struct {
	Resolver       *Resolver
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	KeepAlive      bool
	// TLSConfig is cloned per https connection to set the server name.
	TLSConfig *tls.Config
}

// Dial resolves host and attempts each returned address in order until
// one connects. useTLS wraps the stream for https.
func Dial(ctx context.Context, cfg DialConfig, host, port string, useTLS bool) (*Conn, error) {
	addrs, err := cfg.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, addr := range addrs {
		target := net.JoinHostPort(addr.IP.String(), port)
		raw, err := dialOne(ctx, cfg, target, host, useTLS)
		if err != nil {
			lastErr = &ConnectError{Addr: target, Err: err}
			continue
		}
		return &Conn{
			raw:         raw,
			reader:      bufio.NewReader(raw),
			readTimeout: cfg.ReadTimeout,
			keepAlive:   cfg.KeepAlive,
			reusable:    true,
		}, nil
	}
	return nil, lastErr
}

func dialOne(ctx context.Context, cfg DialConfig, target, serverName string, useTLS bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	if !useTLS {
		return raw, nil
	}

	tlsCfg := cfg.TLSConfig.Clone()
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = serverName
	}
	tlsConn := tls.Client(raw, tlsCfg)
	if cfg.ConnectTimeout > 0 {
		if err := raw.SetDeadline(time.Now().Add(cfg.ConnectTimeout)); err != nil {
			_ = raw.Close()
			return nil, err
		}
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if err := raw.SetDeadline(time.Time{}); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Exchange performs one half-duplex request/response round trip. The
// response body stream stays valid until the next Exchange or Close;
// callers must drain it before releasing the connection.
func (c *Conn) Exchange(req *http.Request) (*http.Response, error) {
	if c.readTimeout > 0 {
		if err := c.raw.SetDeadline(time.Now().Add(c.readTimeout)); err != nil {
			c.reusable = false
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	if !c.keepAlive {
		req.Close = true
	}

	if err := req.Write(c.raw); err != nil {
		c.reusable = false
		return nil, err
	}
	resp, err := http.ReadResponse(c.reader, req)
	if err != nil {
		c.reusable = false
		return nil, err
	}
	if !c.keepAlive || resp.Close || req.Close {
		c.reusable = false
	}
	return resp, nil
}

// MarkBroken flags the connection so the pool closes it instead of
// returning it to the idle set.
func (c *Conn) MarkBroken() { c.reusable = false }

// Reusable reports whether the peer and protocol allow keep-alive reuse.
func (c *Conn) Reusable() bool { return c.reusable }

// Close tears down the underlying stream.
func (c *Conn) Close() error {
	c.reusable = false
	return c.raw.Close()
}
