package flow

import (
	"context"

	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// state is one node of the connection's lifecycle. Each state is a method
// on *Flow returning the state to run next; state.go only names them.
type state int

const (
	stateAccepted state = iota
	stateHTTPProxy
	stateMaybeTLS
	stateConnectTunnel
	stateHandshakeWithClient
	stateWebSocketActive
	stateClosing
)

func (s state) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateHTTPProxy:
		return "http_proxy"
	case stateMaybeTLS:
		return "maybe_tls"
	case stateConnectTunnel:
		return "connect_tunnel"
	case stateHandshakeWithClient:
		return "handshake_with_client"
	case stateWebSocketActive:
		return "websocket_active"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// dialServer attaches the upstream transport for host:port, firing
// server.connect exactly once for this Flow on the first successful dial
// (see Flow.fireServerConnect for why it's keyed to the dial rather than to
// accept time).
func (f *Flow) dialServer(ctx context.Context, host, port string, useTLS bool, tlsArgs transport.ClientTLSArgs) error {
	if err := f.Pair.DialServer(ctx, host, port, useTLS, tlsArgs); err != nil {
		return err
	}
	f.fireServerConnect()
	return nil
}
