package ws

// Endpoint names one side of a WebSocket connection. Ported from the
// original frame_parser's destination_ member: a single parser/serializer
// instance is bound to one pipeline direction and stamped with the endpoint
// its frames are headed toward. That one value drives both inbound
// validation and outbound masking, because RFC 6455 ties both to the same
// fact: frames addressed to the server must be masked, frames addressed to
// the client must not be.
type Endpoint int

const (
	EndpointClient Endpoint = iota
	EndpointServer
)

func (e Endpoint) String() string {
	if e == EndpointServer {
		return "server"
	}
	return "client"
}
