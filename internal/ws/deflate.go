package ws

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"
	"strconv"
	"strings"
)

// DeflateParams is the negotiated permessage-deflate extension parameter
// set (RFC 7692 §7.1), parsed from the Sec-WebSocket-Extensions response
// header.
type DeflateParams struct {
	ClientNoContextTakeover bool
	ServerNoContextTakeover bool
	ClientMaxWindowBits     int
	ServerMaxWindowBits     int
}

const defaultMaxWindowBits = 15

// ParseDeflateParams looks for a "permessage-deflate" offer in the
// Sec-WebSocket-Extensions header value and parses its parameters. Window
// bits are accepted for fidelity with the wire format but are not wired
// into Go's compress/flate, which has no configurable window size; see
// DESIGN.md for the disclosed limitation.
func ParseDeflateParams(extensionsHeader string) (DeflateParams, bool) {
	params := DeflateParams{
		ClientMaxWindowBits: defaultMaxWindowBits,
		ServerMaxWindowBits: defaultMaxWindowBits,
	}
	found := false

	for _, offer := range strings.Split(extensionsHeader, ",") {
		parts := strings.Split(offer, ";")
		if len(parts) == 0 || strings.TrimSpace(parts[0]) != "permessage-deflate" {
			continue
		}
		found = true
		for _, raw := range parts[1:] {
			kv := strings.SplitN(strings.TrimSpace(raw), "=", 2)
			key := strings.TrimSpace(kv[0])
			switch key {
			case "client_no_context_takeover":
				params.ClientNoContextTakeover = true
			case "server_no_context_takeover":
				params.ServerNoContextTakeover = true
			case "client_max_window_bits":
				if len(kv) == 2 {
					if n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(kv[1]), `"`)); err == nil {
						params.ClientMaxWindowBits = n
					}
				}
			case "server_max_window_bits":
				if len(kv) == 2 {
					if n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(kv[1]), `"`)); err == nil {
						params.ServerMaxWindowBits = n
					}
				}
			}
		}
		break
	}

	return params, found
}

var (
	flushMarker  = []byte{0x00, 0x00, 0xFF, 0xFF}
	emptyContent = []byte{0x02, 0x00, 0x00, 0x00, 0xFF, 0xFF}

	// finalBlockTail is a synthetic empty stored final block appended once a
	// message's real compressed bytes are exhausted, so compress/flate's
	// reader sees a well-formed stream end instead of an I/O EOF mid-block.
	// This is the standard trick for decoding RFC 7692's per-message
	// sync-flushed deflate streams with the stdlib's raw flate reader, which
	// otherwise has no notion of "flush boundary, more data later".
	finalBlockTail = []byte{0x01, 0x00, 0x00, 0xFF, 0xFF}

	// ErrDeflateFailure is returned in place of any compress/flate error
	// encountered while inflating a compressed frame payload.
	ErrDeflateFailure = errors.New("ws: permessage-deflate failure")
)

// Deflate implements the permessage-deflate extension (RFC 7692) for one
// connection leg, grounded on permessage_deflate.cpp's on_inbound_frame_*/
// on_outbound_frame hooks. caller names which endpoint this Deflate
// instance compresses outbound frames FOR: a client-side Deflate compresses
// using the client's negotiated context-takeover setting. Decompression
// ignores both context-takeover settings and always carries its window
// forward (see compressNoContextTakeover).
type Deflate struct {
	caller Endpoint
	params DeflateParams

	// compressNoContextTakeover controls whether d resets its own
	// compression state after each message (FULL_FLUSH) or carries it
	// forward (SYNC_FLUSH). Ported from permessage_deflate's flush_
	// selection: only the compressing side ever resets; the original
	// never resets its inflate stream regardless of the peer's declared
	// no_context_takeover, since a sender honoring its own reset simply
	// never emits back-references across the reset point, so a
	// non-resetting decompressor stays correct. Decompress here does the
	// same: inflateDict always carries forward.
	compressNoContextTakeover bool

	deflateBuf    *bytes.Buffer
	deflateWriter *flate.Writer

	inflateReader io.ReadCloser
	inflateDict   []byte

	inboundCompressedSet bool
	inboundCompressed    bool
	inboundCompressible  bool
}

// NewDeflate builds a Deflate extension instance for caller, using the
// negotiated params from the handshake response.
func NewDeflate(caller Endpoint, params DeflateParams) (*Deflate, error) {
	d := &Deflate{caller: caller, params: params}

	if caller == EndpointClient {
		d.compressNoContextTakeover = params.ClientNoContextTakeover
	} else {
		d.compressNoContextTakeover = params.ServerNoContextTakeover
	}

	d.deflateBuf = new(bytes.Buffer)
	fw, err := flate.NewWriter(d.deflateBuf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	d.deflateWriter = fw

	d.inflateReader = flate.NewReader(bytes.NewReader(nil))

	return d, nil
}

// opcodeIsCompressible reports whether frames of this opcode participate in
// permessage-deflate; control frames never do (RFC 7692 §5.1).
func opcodeIsCompressible(opcode Opcode) bool {
	return !opcode.IsControl()
}

// InboundHeader validates RSV1 usage for an about-to-be-processed inbound
// frame and updates per-message compression tracking, ported from
// on_inbound_frame_header.
func (d *Deflate) InboundHeader(opcode Opcode, rsv1 bool) error {
	if rsv1 && (opcode.IsControl() || opcode == OpcodeContinuation) {
		return ErrReservedBits
	}

	d.inboundCompressible = opcodeIsCompressible(opcode)
	if !d.inboundCompressedSet {
		d.inboundCompressed = rsv1
		d.inboundCompressedSet = true
	}
	return nil
}

// InboundComplete clears per-message compression tracking once a message's
// final frame has been processed, ported from on_inbound_frame_complete.
func (d *Deflate) InboundComplete(fin bool) {
	if !fin {
		return
	}
	d.inboundCompressedSet = false
	d.inboundCompressed = false
}

// Decompress inflates payload if the in-progress inbound message is
// compressed, ported from on_inbound_frame_payload.
func (d *Deflate) Decompress(payload []byte) ([]byte, error) {
	if !d.inboundCompressed || !d.inboundCompressible {
		return payload, nil
	}

	data := make([]byte, 0, len(payload)+len(flushMarker))
	data = append(data, payload...)
	data = append(data, flushMarker...)

	src := &tailSource{real: bytes.NewReader(data), tail: finalBlockTail}
	if err := d.inflateReader.(flate.Resetter).Reset(src, d.inflateDict); err != nil {
		return nil, err
	}

	out, err := io.ReadAll(d.inflateReader)
	if err != nil {
		return nil, ErrDeflateFailure
	}

	d.inflateDict = slidingWindow(d.inflateDict, out)

	return out, nil
}

// Compress deflates payload for an outbound message frame. The returned
// rsv1 is true for any non-continuation data opcode, since RSV1 is only set
// on the first frame of a message (RFC 7692 §6.1); the caller threads it
// onto the frame it writes.
func (d *Deflate) Compress(opcode Opcode, payload []byte) (out []byte, rsv1 bool, err error) {
	if !opcodeIsCompressible(opcode) {
		return payload, false, nil
	}
	rsv1 = opcode != OpcodeContinuation

	if len(payload) == 0 {
		return append([]byte{}, emptyContent...), rsv1, nil
	}

	d.deflateBuf.Reset()
	if _, err := d.deflateWriter.Write(payload); err != nil {
		return nil, false, err
	}
	if err := d.deflateWriter.Flush(); err != nil {
		return nil, false, err
	}

	compressed := d.deflateBuf.Bytes()
	if bytes.HasSuffix(compressed, flushMarker) {
		compressed = compressed[:len(compressed)-len(flushMarker)]
	}
	out = append([]byte{}, compressed...)

	if d.compressNoContextTakeover {
		d.deflateWriter.Reset(d.deflateBuf)
	}

	return out, rsv1, nil
}

// slidingWindow returns up to the last 32KB (RFC 1951's maximum LZ77
// distance) of prior||fresh, the dictionary context/flate carries forward
// into the next message when context takeover is negotiated.
func slidingWindow(prior, fresh []byte) []byte {
	const maxWindow = 32 * 1024
	combined := append(append([]byte{}, prior...), fresh...)
	if len(combined) > maxWindow {
		combined = combined[len(combined)-maxWindow:]
	}
	return combined
}

// tailSource feeds real's bytes to the flate reader, then once real is
// exhausted, serves tail exactly once before reporting true EOF. See
// finalBlockTail's doc comment for why this is necessary.
type tailSource struct {
	real     io.Reader
	tail     []byte
	tailSent bool
}

func (s *tailSource) Read(p []byte) (int, error) {
	if s.tailSent && len(s.tail) > 0 {
		n := copy(p, s.tail)
		s.tail = s.tail[n:]
		return n, nil
	}
	n, err := s.real.Read(p)
	if err == io.EOF && !s.tailSent {
		s.tailSent = true
		if n > 0 {
			return n, nil
		}
		return s.Read(p)
	}
	return n, err
}
