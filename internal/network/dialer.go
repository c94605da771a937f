// File: internal/network/dialer.go
package network

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// DialerConfig centralizes the TCP-layer knobs httpclient.go's transport
// wires through; kept separate from ClientConfig so a raw dialer can be
// reused outside an HTTP client.
type DialerConfig struct {
	Timeout      time.Duration
	KeepAlive    time.Duration
	ForceNoDelay bool
	TLSConfig    *tls.Config
}

// NewDialerConfig returns zero-value-safe defaults; callers override fields
// they care about.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
	}
}

// DialTCPContext dials addr with cfg's timeout/keepalive and, when
// ForceNoDelay is set, disables Nagle's algorithm on the resulting
// connection — the discovery probe is latency-sensitive request/response,
// not bulk transfer.
func DialTCPContext(ctx context.Context, network, addr string, cfg *DialerConfig) (net.Conn, error) {
	if cfg == nil {
		cfg = NewDialerConfig()
	}
	d := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: cfg.KeepAlive,
	}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if cfg.ForceNoDelay {
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
	}
	return conn, nil
}
