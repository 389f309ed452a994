package upload

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// deadlineConn pushes the connection deadline forward before every Read and
// Write, so a peer that stops responding fails the operation after timeout
// instead of blocking it forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration

	stop      func() bool
	closeOnce sync.Once
}

// newDeadlineConn wraps conn. When ctx is done the connection is closed,
// which aborts any blocked Read or Write at once.
func newDeadlineConn(ctx context.Context, conn net.Conn, timeout time.Duration) *deadlineConn {
	c := &deadlineConn{Conn: conn, timeout: timeout}
	c.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return c
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

func (c *deadlineConn) Close() error {
	c.closeOnce.Do(func() { c.stop() })
	return c.Conn.Close()
}

// dialFunc returns the dial function used for the control and data
// connections of one session: direct or through the SOCKS5 proxy, with
// every connection wrapped in a deadlineConn.
func dialFunc(ctx context.Context, uc *UploadContext) (func(network, address string) (net.Conn, error), error) {
	timeout := uc.Timeout()
	base := &net.Dialer{Timeout: timeout}

	dial := base.DialContext
	if uc.UseProxy && uc.Proxy != nil {
		socks, err := socksDialer(uc, base)
		if err != nil {
			return nil, err
		}
		dial = socks
	}

	return func(network, address string) (net.Conn, error) {
		conn, err := dial(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return newDeadlineConn(ctx, conn, timeout), nil
	}, nil
}

func socksDialer(uc *UploadContext, forward *net.Dialer) (func(ctx context.Context, network, address string) (net.Conn, error), error) {
	p := uc.Proxy
	proxyAddr := p.Address
	if p.Port != "" {
		proxyAddr = net.JoinHostPort(p.Address, p.Port)
	}

	var auth *proxy.Auth
	if p.User != "" {
		auth = &proxy.Auth{User: p.User, Password: p.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", proxyAddr, err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, address string) (net.Conn, error) {
		return dialer.Dial(network, address)
	}, nil
}
