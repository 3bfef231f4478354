package intercept

// The following optional interfaces are this proxy's realization of
// spec.md's "interceptor hub": a C++ base class with every method
// overridable and defaulting to a no-op. Go has no virtual dispatch, so the
// override check becomes a structural one — WireHub type-asserts hub
// against each single-method interface and attaches only the ones it
// actually implements. A caller who wants convenient no-op defaults can
// embed the corresponding Base*Hub struct and override only the methods
// they care about; because embedding still makes every method resolvable,
// an embedding hub satisfies every OnX interface for its family, which
// costs nothing since the unembedded defaults do nothing.

type OnServerConnect interface{ OnServerConnect(ServerPayload) }
type OnServerDisconnect interface{ OnServerDisconnect(ServerPayload) }

type OnHTTPRequest interface{ OnHTTPRequest(HTTPPayload) }
type OnHTTPConnect interface{ OnHTTPConnect(HTTPPayload) }
type OnHTTPAnyRequest interface{ OnHTTPAnyRequest(HTTPPayload) }
type OnHTTPWebSocketHandshake interface{ OnHTTPWebSocketHandshake(HTTPPayload) }
type OnHTTPResponse interface{ OnHTTPResponse(HTTPPayload) }
type OnHTTPError interface{ OnHTTPError(HTTPPayload) }

type OnTunnelStart interface{ OnTunnelStart(TunnelPayload) }
type OnTunnelStop interface{ OnTunnelStop(TunnelPayload) }

type OnTLSEstablished interface{ OnTLSEstablished(TLSPayload) }
type OnTLSError interface{ OnTLSError(TLSPayload) }

type OnCertSearch interface{ OnCertSearch(CertPayload) }
type OnCertCreate interface{ OnCertCreate(CertPayload) }

type OnWebSocketStart interface{ OnWebSocketStart(WebSocketPayload) }
type OnWebSocketStop interface{ OnWebSocketStop(WebSocketPayload) }
type OnWebSocketError interface{ OnWebSocketError(WebSocketPayload) }

type OnWebSocketMessageReceived interface {
	OnWebSocketMessageReceived(WebSocketMessagePayload)
}

// BaseServerHub, embedded in a concrete hub, supplies no-op server.* methods.
type BaseServerHub struct{}

func (BaseServerHub) OnServerConnect(ServerPayload)    {}
func (BaseServerHub) OnServerDisconnect(ServerPayload) {}

// BaseHTTPHub supplies no-op http.* methods.
type BaseHTTPHub struct{}

func (BaseHTTPHub) OnHTTPRequest(HTTPPayload)            {}
func (BaseHTTPHub) OnHTTPConnect(HTTPPayload)            {}
func (BaseHTTPHub) OnHTTPAnyRequest(HTTPPayload)         {}
func (BaseHTTPHub) OnHTTPWebSocketHandshake(HTTPPayload) {}
func (BaseHTTPHub) OnHTTPResponse(HTTPPayload)           {}
func (BaseHTTPHub) OnHTTPError(HTTPPayload)              {}

// BaseTunnelHub supplies no-op tunnel.* methods.
type BaseTunnelHub struct{}

func (BaseTunnelHub) OnTunnelStart(TunnelPayload) {}
func (BaseTunnelHub) OnTunnelStop(TunnelPayload)  {}

// BaseTLSHub supplies no-op tls.* methods.
type BaseTLSHub struct{}

func (BaseTLSHub) OnTLSEstablished(TLSPayload) {}
func (BaseTLSHub) OnTLSError(TLSPayload)       {}

// BaseCertHub supplies no-op ssl_certificate.* methods.
type BaseCertHub struct{}

func (BaseCertHub) OnCertSearch(CertPayload) {}
func (BaseCertHub) OnCertCreate(CertPayload) {}

// BaseWebSocketHub supplies no-op websocket.* and websocket_message.*
// methods.
type BaseWebSocketHub struct{}

func (BaseWebSocketHub) OnWebSocketStart(WebSocketPayload)                  {}
func (BaseWebSocketHub) OnWebSocketStop(WebSocketPayload)                   {}
func (BaseWebSocketHub) OnWebSocketError(WebSocketPayload)                  {}
func (BaseWebSocketHub) OnWebSocketMessageReceived(WebSocketMessagePayload) {}

// WireHub attaches every OnX method hub implements to the matching table on
// d, in a fixed family/event order, and returns the ids so the caller can
// bulk-detach later (e.g. an extension being unloaded).
func (d *Dispatcher) WireHub(hub any) []uint64 {
	var ids []uint64

	if h, ok := hub.(OnServerConnect); ok {
		ids = append(ids, d.Server.Attach(ServerConnect, h.OnServerConnect))
	}
	if h, ok := hub.(OnServerDisconnect); ok {
		ids = append(ids, d.Server.Attach(ServerDisconnect, h.OnServerDisconnect))
	}

	if h, ok := hub.(OnHTTPRequest); ok {
		ids = append(ids, d.HTTP.Attach(HTTPRequest, h.OnHTTPRequest))
	}
	if h, ok := hub.(OnHTTPConnect); ok {
		ids = append(ids, d.HTTP.Attach(HTTPConnect, h.OnHTTPConnect))
	}
	if h, ok := hub.(OnHTTPAnyRequest); ok {
		ids = append(ids, d.HTTP.Attach(HTTPAnyRequest, h.OnHTTPAnyRequest))
	}
	if h, ok := hub.(OnHTTPWebSocketHandshake); ok {
		ids = append(ids, d.HTTP.Attach(HTTPWebSocketHandshake, h.OnHTTPWebSocketHandshake))
	}
	if h, ok := hub.(OnHTTPResponse); ok {
		ids = append(ids, d.HTTP.Attach(HTTPResponse, h.OnHTTPResponse))
	}
	if h, ok := hub.(OnHTTPError); ok {
		ids = append(ids, d.HTTP.Attach(HTTPError, h.OnHTTPError))
	}

	if h, ok := hub.(OnTunnelStart); ok {
		ids = append(ids, d.Tunnel.Attach(TunnelStart, h.OnTunnelStart))
	}
	if h, ok := hub.(OnTunnelStop); ok {
		ids = append(ids, d.Tunnel.Attach(TunnelStop, h.OnTunnelStop))
	}

	if h, ok := hub.(OnTLSEstablished); ok {
		ids = append(ids, d.TLS.Attach(TLSEstablished, h.OnTLSEstablished))
	}
	if h, ok := hub.(OnTLSError); ok {
		ids = append(ids, d.TLS.Attach(TLSError, h.OnTLSError))
	}

	if h, ok := hub.(OnCertSearch); ok {
		ids = append(ids, d.Certificate.Attach(CertSearch, h.OnCertSearch))
	}
	if h, ok := hub.(OnCertCreate); ok {
		ids = append(ids, d.Certificate.Attach(CertCreate, h.OnCertCreate))
	}

	if h, ok := hub.(OnWebSocketStart); ok {
		ids = append(ids, d.WebSocket.Attach(WebSocketStart, h.OnWebSocketStart))
	}
	if h, ok := hub.(OnWebSocketStop); ok {
		ids = append(ids, d.WebSocket.Attach(WebSocketStop, h.OnWebSocketStop))
	}
	if h, ok := hub.(OnWebSocketError); ok {
		ids = append(ids, d.WebSocket.Attach(WebSocketError, h.OnWebSocketError))
	}

	if h, ok := hub.(OnWebSocketMessageReceived); ok {
		ids = append(ids, d.WebSocketMessage.Attach(WebSocketMessageReceived, h.OnWebSocketMessageReceived))
	}

	return ids
}
