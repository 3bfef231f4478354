package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/multierr"
)

// Pair owns the client-side and server-side transports of one proxied
// connection (spec §3 "Connection pair"/§2 component A). The server side is
// optional until a successful connect (and TLS handshake, if applicable)
// sets it.
type Pair struct {
	Client Transport
	Server Transport

	TargetHost string
	TargetPort string
}

// NewPair wraps an already-accepted client connection; Server is attached
// later via SetServer once the proxy resolves and connects upstream.
func NewPair(client Transport) *Pair {
	return &Pair{Client: client}
}

// SetServer attaches the upstream transport once connected.
func (p *Pair) SetServer(server Transport) {
	p.Server = server
}

// Connected reports whether the server side has been attached.
func (p *Pair) Connected() bool {
	return p.Server != nil
}

// Close shuts down both sides, joining any errors from each rather than
// dropping one — connection_flow.hpp's connection_flow owns closing both
// its client and server connections together; this keeps that ownership
// but reports a failure on either side instead of silently swallowing it.
func (p *Pair) Close() error {
	var err error
	if p.Client != nil {
		err = multierr.Append(err, p.Client.Close())
	}
	if p.Server != nil {
		err = multierr.Append(err, p.Server.Close())
	}
	return err
}

// Target formats the upstream address for dialing.
func (p *Pair) Target() string {
	return net.JoinHostPort(p.TargetHost, p.TargetPort)
}

// DialServer resolves and connects the server-side transport for host:port,
// plain or TLS depending on useTLS, and attaches it to the pair on success.
func (p *Pair) DialServer(ctx context.Context, host, port string, useTLS bool, tlsArgs ClientTLSArgs) error {
	p.TargetHost, p.TargetPort = host, port
	addr := net.JoinHostPort(host, port)

	var (
		server Transport
		err    error
	)
	if useTLS {
		if tlsArgs.ServerName == "" {
			tlsArgs.ServerName = host
		}
		server, err = DialTLS(ctx, addr, tlsArgs)
	} else {
		server, err = DialPlain(ctx, addr)
	}
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	p.SetServer(server)
	return nil
}
