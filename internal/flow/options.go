package flow

import (
	"time"

	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// Options carries the per-server settings the state machine consults at
// each decision point (spec §4.E decision rules, §6 CLI surface). The
// config/CLI layer (internal/config, cmd/aetherproxy) is responsible for
// filling this in; internal/flow never reads flags or files directly.
type Options struct {
	// SSLPassthroughStrict, if set, always tunnels a CONNECT opaquely —
	// the proxy never inspects or terminates TLS for any target.
	SSLPassthroughStrict bool
	// SSLPassthrough tunnels unless the flow's interceptTLS flag is set
	// (see Flow); SSLPassthroughStrict takes precedence.
	SSLPassthrough bool
	// SSLSupplyServerChain, when splicing, first completes the upstream TLS
	// handshake to harvest its certificate chain before minting a leaf.
	SSLSupplyServerChain bool

	// WSPassthroughStrict/WSPassthrough/WSInterceptDefault mirror the SSL
	// trio for WebSocket message interception.
	WSPassthroughStrict bool
	WSPassthrough       bool
	WSInterceptDefault  bool

	// BodySizeLimit bounds a parsed HTTP body; 0 defers to httpmsg's default.
	BodySizeLimit int64
	// Timeout bounds a single upstream dial/request; TunnelTimeout bounds
	// idle time within a ConnectTunnel byte copy. The WebSocketActive
	// pipeline does not read TunnelTimeout: its transports keep the deadline
	// they already carry.
	Timeout       time.Duration
	TunnelTimeout time.Duration

	// UpstreamTLS is the template used for the chain-harvesting upstream TLS
	// dial (SSLSupplyServerChain); ServerName is filled in per-target by the
	// caller.
	UpstreamTLS transport.ClientTLSArgs
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return transport.DefaultTimeout
}

func (o Options) tunnelTimeout() time.Duration {
	if o.TunnelTimeout > 0 {
		return o.TunnelTimeout
	}
	return transport.DefaultTunnelTimeout
}
