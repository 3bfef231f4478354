package flow

import (
	"bufio"
	"context"

	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// tlsRecordTypeHandshake is the TLS record content type byte (RFC 8446
// §5.1) that distinguishes a raw TLS ClientHello from an HTTP request line
// on the first byte of a freshly accepted connection.
const tlsRecordTypeHandshake = 0x16

// stateAccepted peeks the first byte of the client stream without
// consuming it (spec §4.E: "first byte non-0x16 => HttpProxy; 0x16 =>
// MaybeTls"). The peeked byte stays in f.br's buffer for whichever state
// runs next to read properly.
func (f *Flow) stateAccepted(ctx context.Context) (state, error) {
	if f.br == nil {
		f.br = bufio.NewReader(transport.Reader(ctx, f.Pair.Client))
	}
	b, err := f.br.Peek(1)
	if err != nil {
		return stateClosing, err
	}
	if b[0] == tlsRecordTypeHandshake {
		return stateMaybeTLS, nil
	}
	return stateHTTPProxy, nil
}
