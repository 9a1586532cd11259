// Package adbhost connects to an ADB host server.
package adbhost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/adbview/adbview/adb/adbproto"
)

// DefaultAddr is the default address for the ADB host server.
var DefaultAddr = "localhost:5037"

// ErrConnection is matched by errors caused by failing to connect to the ADB
// host server, as opposed to the server rejecting a request.
var ErrConnection = errors.New("cannot connect to adb server")

// Dialer connects to an ADB host server.
//
// A nil Dialer will act the same way as an zero Dialer.
type Dialer struct {
	// DialContext is the function used to open the TCP connection. If nil,
	// the default [net.Dialer]'s DialContext is used.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// Addr is the server address. If empty, [DefaultAddr] is used.
	Addr string

	// DialTimeout, if non-zero, limits the time taken to establish the TCP
	// connection.
	DialTimeout time.Duration

	// IdleTimeout, if non-zero, is the maximum amount of time a read or write
	// on a returned connection may go without making progress.
	IdleTimeout time.Duration

	f atomic.Pointer[map[adbproto.Feature]struct{}]
}

type connError struct {
	Addr string
	Err  error
}

func (e *connError) Error() string {
	if isConnRefused(e.Err) {
		return fmt.Sprintf("%v at %s (is the adb server running?): %v", ErrConnection, e.Addr, e.Err)
	}
	return fmt.Sprintf("%v at %s: %v", ErrConnection, e.Addr, e.Err)
}

func (e *connError) Is(target error) bool {
	return target == ErrConnection
}

func (e *connError) Unwrap() error {
	return e.Err
}

// DialADBHost connects to the specified service on the host server. It will
// return immediately if ctx is cancelled. The context deadline applies to the
// time to establish the tcp connection and receive the OKAY completing the
// service connection.
func (c *Dialer) DialADBHost(ctx context.Context, svc string) (net.Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", svc, err)
	}
	if err := adbService(ctx, conn, svc); err != nil {
		conn.Close()
		return nil, fmt.Errorf("service %q: %w", svc, err)
	}
	return conn, nil
}

func (c *Dialer) dial(ctx context.Context) (net.Conn, error) {
	var dc func(ctx context.Context, network, addr string) (net.Conn, error)
	if c != nil && c.DialContext != nil {
		dc = c.DialContext
	} else {
		dc = new(net.Dialer).DialContext
	}
	var addr string
	if c != nil && c.Addr != "" {
		addr = c.Addr
	} else {
		addr = DefaultAddr
	}
	if c != nil && c.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DialTimeout)
		defer cancel()
	}
	conn, err := dc(ctx, "tcp", addr)
	if err != nil {
		return nil, &connError{addr, err}
	}
	if c != nil && c.IdleTimeout > 0 {
		conn = &idleConn{conn, c.IdleTimeout}
	}
	return conn, nil
}

// idleConn extends the deadline before every read and write.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(p)
}

// adbService connects to svc, using the deadline from ctx, and returning
// immediately if ctx is cancelled.
func adbService(ctx context.Context, conn net.Conn, svc string) error {
	ch := make(chan error, 1)
	go func() (err error) {
		defer func() { ch <- err }()
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
			defer conn.SetDeadline(time.Time{})
		}
		if err := adbproto.SendProtocolString(conn, svc); err != nil {
			return adbproto.ProtocolErrorf("send service: %w", err)
		}
		return adbproto.ReadOkayFail(conn)
	}()
	select {
	case err := <-ch:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
	return nil
}
