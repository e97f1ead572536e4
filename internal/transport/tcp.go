package transport

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"
)

const DefaultPort = 25565

// SRVResolver is the part of *net.Resolver used for service discovery.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// TCPDialer dials plain TCP. With SRV set, a _minecraft._tcp record is
// consulted for hostnames on the default port.
type TCPDialer struct {
	SRV      bool
	Resolver SRVResolver
	Timeout  time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	addr := d.Resolve(ctx, host, port)
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	// Disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	slog.Debug("Connected", "address", addr)
	return conn, nil
}

// Resolve returns the address to dial, following an SRV record when one
// applies. Lookup failures fall back to host:port.
func (d *TCPDialer) Resolve(ctx context.Context, host string, port int) string {
	if !d.SRV || !wantsSRV(host, port) {
		return joinHostPort(host, port)
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, records, err := resolver.LookupSRV(ctx, "minecraft", "tcp", host)
	if err != nil || len(records) == 0 {
		slog.Debug("SRV lookup failed, using plain address", "host", host, "error", err)
		return joinHostPort(host, port)
	}
	target := strings.TrimSuffix(records[0].Target, ".")
	slog.Debug("SRV record found", "host", host, "target", target, "port", records[0].Port)
	return joinHostPort(target, int(records[0].Port))
}

// 仅对默认端口上的域名做 SRV 查询
func wantsSRV(host string, port int) bool {
	if port != DefaultPort || host == "" || host == "localhost" {
		return false
	}
	return net.ParseIP(host) == nil
}
