// Package transport wraps the client-side and server-side connections of a
// proxied flow behind one interface, whether the underlying socket is plain
// TCP or TLS (spec §4.A).
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"
)

// Default deadlines: 120s for a general request/response exchange, 30s for
// an idle tunnel or WebSocket connection.
const (
	DefaultTimeout       = 120 * time.Second
	DefaultTunnelTimeout = 30 * time.Second
)

// ErrTimeout is surfaced when a read or write's deadline elapses.
var ErrTimeout = errors.New("transport: operation timed out")

// Transport is a cancellable, deadline-bounded byte stream: at most one
// outstanding read and one outstanding write per direction, per spec §3's
// Transport invariant.
type Transport interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, buf []byte) (int, error)

	// Cancel unblocks any in-flight Read/Write cooperatively, by forcing the
	// underlying deadline into the past — net.Conn predates context
	// cancellation and has no native cancel hook.
	Cancel()

	Close() error

	// SetDeadline arms the deadline applied to the next Read/Write pair.
	SetDeadline(d time.Duration)

	// LocalAddr/RemoteAddr expose the underlying socket endpoints, used for
	// logging and the admin surface.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// conn is the plain-TCP Transport implementation.
type conn struct {
	nc       net.Conn
	deadline time.Duration
}

// NewPlain wraps an already-connected net.Conn.
func NewPlain(nc net.Conn) Transport {
	return &conn{nc: nc, deadline: DefaultTimeout}
}

// DialPlain connects to addr over plain TCP, honoring ctx for cancellation
// during the dial itself (not just post-connect reads/writes).
func DialPlain(ctx context.Context, addr string) (Transport, error) {
	d := &net.Dialer{Timeout: DefaultTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewPlain(nc), nil
}

func (c *conn) Read(ctx context.Context, buf []byte) (int, error) {
	if err := c.armDeadline(ctx); err != nil {
		return 0, err
	}
	n, err := c.nc.Read(buf)
	return n, translateTimeout(err)
}

func (c *conn) Write(ctx context.Context, buf []byte) (int, error) {
	if err := c.armDeadline(ctx); err != nil {
		return 0, err
	}
	n, err := c.nc.Write(buf)
	return n, translateTimeout(err)
}

func (c *conn) armDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.deadline > 0 {
		return c.nc.SetDeadline(time.Now().Add(c.deadline))
	}
	return c.nc.SetDeadline(time.Time{})
}

func (c *conn) Cancel() {
	_ = c.nc.SetDeadline(time.Now())
}

func (c *conn) Close() error {
	return c.nc.Close()
}

func (c *conn) SetDeadline(d time.Duration) {
	c.deadline = d
}

func (c *conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func translateTimeout(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

// ClientTLSArgs configures an outbound TLS handshake toward the real
// upstream server (spec §4.A "TLS client args").
type ClientTLSArgs struct {
	ServerName         string
	InsecureSkipVerify bool
	RootCAs            *x509.CertPool
	NextProtos         []string
	CipherSuites       []uint16
	MinVersion         uint16
}

func (a ClientTLSArgs) tlsConfig() *tls.Config {
	min := a.MinVersion
	if min == 0 {
		min = tls.VersionTLS10
	}
	return &tls.Config{
		ServerName:         a.ServerName,
		InsecureSkipVerify: a.InsecureSkipVerify,
		RootCAs:            a.RootCAs,
		NextProtos:         a.NextProtos,
		CipherSuites:       a.CipherSuites,
		MinVersion:         min,
	}
}

// ServerTLSArgs configures the inbound TLS handshake toward the client,
// presenting a certificate minted by internal/certstore.
type ServerTLSArgs struct {
	Certificates []tls.Certificate
	NextProtos   []string
	ClientAuth   tls.ClientAuthType
}

func (a ServerTLSArgs) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates: a.Certificates,
		NextProtos:   a.NextProtos,
		ClientAuth:   a.ClientAuth,
	}
}

// tlsTransport wraps a *tls.Conn; deadlines pass through to the embedded
// net.Conn exactly like the plain variant (crypto/tls.Conn forwards
// SetDeadline to the raw socket).
type tlsTransport struct {
	conn
	tc *tls.Conn
}

// DialTLS connects to addr over TCP and performs a client TLS handshake.
func DialTLS(ctx context.Context, addr string, args ClientTLSArgs) (Transport, error) {
	d := &net.Dialer{Timeout: DefaultTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tc := tls.Client(nc, args.tlsConfig())
	if err := tc.HandshakeContext(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return &tlsTransport{conn: conn{nc: tc, deadline: DefaultTimeout}, tc: tc}, nil
}

// ServerTLS performs a server-side TLS handshake over an already-accepted
// connection, presenting args.Certificates.
func ServerTLS(ctx context.Context, nc net.Conn, args ServerTLSArgs) (Transport, error) {
	tc := tls.Server(nc, args.tlsConfig())
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return &tlsTransport{conn: conn{nc: tc, deadline: DefaultTimeout}, tc: tc}, nil
}

// PeerCertificate returns the leaf certificate presented by the remote side
// of a TLS transport, or nil if t is not TLS or the handshake presented no
// certificate.
func PeerCertificate(t Transport) *x509.Certificate {
	tt, ok := t.(*tlsTransport)
	if !ok {
		return nil
	}
	chain := tt.tc.ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return nil
	}
	return chain[0]
}

// PeerChain returns the full certificate chain presented by the remote side
// of a TLS transport.
func PeerChain(t Transport) []*x509.Certificate {
	tt, ok := t.(*tlsTransport)
	if !ok {
		return nil
	}
	return tt.tc.ConnectionState().PeerCertificates
}

// NegotiatedProtocol returns the ALPN protocol chosen during the handshake,
// empty if none was negotiated or t is not TLS.
func NegotiatedProtocol(t Transport) string {
	tt, ok := t.(*tlsTransport)
	if !ok {
		return ""
	}
	return tt.tc.ConnectionState().NegotiatedProtocol
}

// UnderlyingConn returns the raw net.Conn beneath t, for protocol handoffs
// (minting a server TLS handshake atop an accepted plain socket) that need
// to hand the connection to a different wrapper than this package's own.
// Returns nil for a Transport this package didn't construct.
func UnderlyingConn(t Transport) net.Conn {
	switch v := t.(type) {
	case *conn:
		return v.nc
	case *tlsTransport:
		return v.tc
	}
	return nil
}
