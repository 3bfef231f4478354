package ws

// Codec parses and serializes frames for one pipeline direction, grounded on
// the original frame_parser: one instance per direction, shared between
// parse() and serialize() because both need the same destination_ and the
// same effective-opcode tracking for fragmented messages.
//
// AllowRSV1 is set once permessage-deflate negotiation (spec §4.H) confirms
// the extension is active; without it, RSV1 on any frame is a protocol
// error.
type Codec struct {
	Destination Endpoint
	AllowRSV1   bool

	effectiveOpcodeIn  *Opcode
	effectiveOpcodeOut *Opcode
}

// NewCodec builds a Codec for frames headed toward destination.
func NewCodec(destination Endpoint) *Codec {
	return &Codec{Destination: destination}
}

// inProgress reports whether a fragmented data message is being assembled
// on the inbound side.
func (c *Codec) inProgress() bool {
	return c.effectiveOpcodeIn != nil
}
