// Package transport provides the byte streams a session runs over.
package transport

import (
	"context"
	"io"
	"net"
	"strconv"
)

// Conn is a connected byte stream. Implementations may also provide
// CloseWrite for a half close; sessions fall back to Close without it.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// HalfCloser is implemented by streams that can stop sending while still
// reading, like *net.TCPConn.
type HalfCloser interface {
	CloseWrite() error
}

// Dialer connects to a server.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host string, port int) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, host string, port int) (Conn, error) {
	return f(ctx, host, port)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
