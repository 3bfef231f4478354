package intercept

// Dispatcher aggregates one Table per event family (spec §4.F's closed set:
// server, http, tunnel, tls, ssl_certificate, websocket, websocket_message).
type Dispatcher struct {
	Server           *Table[ServerEvent, ServerPayload]
	HTTP             *Table[HTTPEvent, HTTPPayload]
	Tunnel           *Table[TunnelEvent, TunnelPayload]
	TLS              *Table[TLSEvent, TLSPayload]
	Certificate      *Table[CertEvent, CertPayload]
	WebSocket        *Table[WebSocketEvent, WebSocketPayload]
	WebSocketMessage *Table[WebSocketMessageEvent, WebSocketMessagePayload]
}

// NewDispatcher builds an empty dispatcher with all seven family tables
// ready to accept attachments.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Server:           NewTable[ServerEvent, ServerPayload](),
		HTTP:             NewTable[HTTPEvent, HTTPPayload](),
		Tunnel:           NewTable[TunnelEvent, TunnelPayload](),
		TLS:              NewTable[TLSEvent, TLSPayload](),
		Certificate:      NewTable[CertEvent, CertPayload](),
		WebSocket:        NewTable[WebSocketEvent, WebSocketPayload](),
		WebSocketMessage: NewTable[WebSocketMessageEvent, WebSocketMessagePayload](),
	}
}
