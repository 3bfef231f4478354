package intercept

import (
	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/httpmsg"
	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// FlowInfo is the subset of a connection flow's state every interceptor
// payload carries: enough to log and correlate without this package
// depending on internal/flow (which depends on this package for dispatch,
// so the reverse import would cycle).
type FlowInfo struct {
	ID         uint64
	ClientAddr string
	TargetHost string
	TargetPort string
	Err        error
}

// ServerEvent enumerates the "server" family (spec §4.F event table).
type ServerEvent int

const (
	ServerConnect ServerEvent = iota + 1
	ServerDisconnect
)

// ServerPayload carries the server transport, per the event table's "server
// transport" payload column.
type ServerPayload struct {
	Flow   FlowInfo
	Server transport.Transport
}

// HTTPEvent enumerates the "http" family.
type HTTPEvent int

const (
	HTTPRequest HTTPEvent = iota + 1
	HTTPConnect
	HTTPAnyRequest
	HTTPWebSocketHandshake
	HTTPResponse
	HTTPError
)

// HTTPPayload carries the flow plus the exchange being processed. Handlers
// may call MakeResponse to short-circuit upstream I/O.
type HTTPPayload struct {
	Flow     FlowInfo
	Exchange *httpmsg.Exchange
}

// MakeResponse synthesizes resp as the exchange's response, short-circuiting
// any upstream request the flow state machine would otherwise have made.
// The flow state machine skips the upstream request when Exchange.Response
// is non-nil after firing.
func (p HTTPPayload) MakeResponse(resp *httpmsg.Response) {
	resp.Synthesized = true
	p.Exchange.Response = resp
}

// TunnelEvent enumerates the "tunnel" family.
type TunnelEvent int

const (
	TunnelStart TunnelEvent = iota + 1
	TunnelStop
)

// TunnelPayload carries only the flow, per the event table.
type TunnelPayload struct {
	Flow FlowInfo
}

// TLSEvent enumerates the "tls" family.
type TLSEvent int

const (
	TLSEstablished TLSEvent = iota + 1
	TLSError
)

// TLSPayload carries the flow; Err is set for the error event.
type TLSPayload struct {
	Flow FlowInfo
	Err  error
}

// CertEvent enumerates the "ssl_certificate" family.
type CertEvent int

const (
	CertSearch CertEvent = iota + 1
	CertCreate
)

// CertPayload carries the flow and the minting key being searched/created,
// per the event table's "connection flow + certificate_interface" payload.
type CertPayload struct {
	Flow      FlowInfo
	Interface certstore.Interface
}

// WebSocketEvent enumerates the "websocket" family.
type WebSocketEvent int

const (
	WebSocketStart WebSocketEvent = iota + 1
	WebSocketStop
	WebSocketError
)

// Pipeline is the narrow view of a WebSocket message pipeline an
// interceptor needs. internal/ws's concrete pipeline type implements this
// without internal/intercept importing internal/ws, avoiding a cycle (ws's
// pipeline in turn will want to fire through a Dispatcher).
type Pipeline interface {
	Direction() string
}

// WebSocketPayload carries the flow and pipeline, per the event table.
type WebSocketPayload struct {
	Flow     FlowInfo
	Pipeline Pipeline
	Err      error
}

// WebSocketMessageEvent enumerates the "websocket_message" family.
type WebSocketMessageEvent int

const (
	WebSocketMessageReceived WebSocketMessageEvent = iota + 1
)

// Message is the narrow view of an assembled WebSocket message an
// interceptor can inspect, mutate, or block (spec §4.G "message" state,
// §4.F websocket_message.received).
type Message interface {
	Opcode() int
	Payload() []byte
	SetPayload([]byte)
	Block()
	Blocked() bool
}

// WebSocketMessagePayload carries the flow, pipeline, and message.
type WebSocketMessagePayload struct {
	Flow     FlowInfo
	Pipeline Pipeline
	Message  Message
}
