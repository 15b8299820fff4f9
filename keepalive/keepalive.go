// Package keepalive configures TCP keep-alive of monitor connections, so
// that sessions of brokers which vanish without closing their socket (eg,
// a host losing power) are eventually torn down and deregistered.
package keepalive

import (
	"context"
	"net"
	"time"
)

// Period is the keep-alive period applied to accepted and dialed connections.
var Period = 30 * time.Second

// Dialer is copied from the invocation in http.DefaultTransport:
// https://github.com/golang/go/blob/859cab099c5a9a9b4939960b630b78e468c8c39e/src/net/http/transport.go#L40-L44
var Dialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: Period,
}

// DialerFunc dials TCP |addr| with |ctx|.
func DialerFunc(ctx context.Context, addr string) (net.Conn, error) {
	return Dialer.DialContext(ctx, "tcp", addr)
}

// TCPListener sets TCP keep-alive timeouts on accepted connections.
// A zero-valued KeepAlive uses Period.
type TCPListener struct {
	*net.TCPListener
	KeepAlive time.Duration
}

// Accept a connection and enable its keep-alive.
func (ln TCPListener) Accept() (net.Conn, error) {
	var tc, err = ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	var period = ln.KeepAlive
	if period == 0 {
		period = Period
	}
	_ = tc.SetKeepAlive(true)
	_ = tc.SetKeepAlivePeriod(period)
	return tc, nil
}
