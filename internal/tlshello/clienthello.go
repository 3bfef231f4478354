// Package tlshello parses a TLS ClientHello record peeked from the client
// connection before any handshake byte is consumed, so the same bytes are
// still available for the real crypto/tls handshake afterward (spec §4.B,
// §8 property 4).
package tlshello

import (
	"bufio"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// ErrInvalidClientHello is returned for any structurally malformed record.
var ErrInvalidClientHello = errors.New("tlshello: invalid client hello")

// ServerName is one entry of the server_name extension (RFC 6066 §3); type 0
// is host_name, the only type in practice.
type ServerName struct {
	Type byte
	Host string
}

// ClientHello holds the fields this proxy inspects before connecting
// upstream and/or minting a certificate (spec §3).
type ClientHello struct {
	RecordVersionMajor, RecordVersionMinor byte
	ServerNames                            []ServerName
	ALPN                                   []string
	CipherSuites                           []uint16
	Extensions                             map[uint16][]byte

	// Raw is the exact bytes of the record (header included), handed back
	// to the caller so it can prepend them to the stream it feeds into
	// crypto/tls.Server — the read was non-destructive.
	Raw []byte
}

// SNI returns the first host_name server name, if any.
func (c ClientHello) SNI() (string, bool) {
	for _, sn := range c.ServerNames {
		if sn.Type == 0 {
			return sn.Host, true
		}
	}
	return "", false
}

const (
	recordTypeHandshake      = 0x16
	handshakeTypeClientHello = 0x01

	extServerName = 0x0000
	extALPN       = 0x0010
)

// Read peeks at br until a complete TLS record containing a ClientHello is
// available, validates the record/handshake headers, and parses the body.
// The underlying bytes are left in br (Peek, not Read) so a later
// crypto/tls.Server handshake sees the identical stream.
func Read(br *bufio.Reader) (ClientHello, error) {
	header, err := br.Peek(5)
	if err != nil {
		return ClientHello{}, fmt.Errorf("%w: short record header", ErrInvalidClientHello)
	}
	if header[0] != recordTypeHandshake {
		return ClientHello{}, fmt.Errorf("%w: not a handshake record", ErrInvalidClientHello)
	}
	if header[1] != 0x03 || header[2] > 0x03 {
		// TLS record version must be <= {3,3} (TLS 1.2); TLS 1.3 ClientHellos
		// still advertise {3,3} at the record layer for middlebox compatibility.
		return ClientHello{}, fmt.Errorf("%w: unsupported record version", ErrInvalidClientHello)
	}
	recordLen := int(header[3])<<8 | int(header[4])

	total := 5 + recordLen
	body, err := br.Peek(total)
	if err != nil {
		return ClientHello{}, fmt.Errorf("%w: short record body", ErrInvalidClientHello)
	}
	raw := append([]byte(nil), body...)

	hello, err := parse(raw)
	if err != nil {
		return ClientHello{}, err
	}
	hello.RecordVersionMajor, hello.RecordVersionMinor = header[1], header[2]
	hello.Raw = raw
	return hello, nil
}

func parse(raw []byte) (ClientHello, error) {
	if len(raw) < 9 {
		return ClientHello{}, fmt.Errorf("%w: message too short", ErrInvalidClientHello)
	}
	handshakeHeader := raw[5:9]
	if handshakeHeader[0] != handshakeTypeClientHello {
		return ClientHello{}, fmt.Errorf("%w: not a ClientHello handshake message", ErrInvalidClientHello)
	}
	handshakeLen := int(handshakeHeader[1])<<16 | int(handshakeHeader[2])<<8 | int(handshakeHeader[3])
	if handshakeLen != len(raw)-9 {
		return ClientHello{}, fmt.Errorf("%w: handshake length mismatch", ErrInvalidClientHello)
	}

	s := cryptobyte.String(raw[9:])
	var version uint16
	var random []byte
	if !s.ReadUint16(&version) || !s.ReadBytes(&random, 32) {
		return ClientHello{}, fmt.Errorf("%w: truncated version/random", ErrInvalidClientHello)
	}

	var sessionID cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) {
		return ClientHello{}, fmt.Errorf("%w: truncated session id", ErrInvalidClientHello)
	}

	var ciphersRaw cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&ciphersRaw) || len(ciphersRaw)%2 != 0 {
		return ClientHello{}, fmt.Errorf("%w: invalid cipher suites length", ErrInvalidClientHello)
	}
	var ciphers []uint16
	for !ciphersRaw.Empty() {
		var c uint16
		if !ciphersRaw.ReadUint16(&c) {
			return ClientHello{}, fmt.Errorf("%w: invalid cipher suite entry", ErrInvalidClientHello)
		}
		ciphers = append(ciphers, c)
	}

	var compression cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&compression) {
		return ClientHello{}, fmt.Errorf("%w: truncated compression methods", ErrInvalidClientHello)
	}

	hello := ClientHello{CipherSuites: ciphers, Extensions: make(map[uint16][]byte)}

	if s.Empty() {
		return hello, nil
	}

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) {
		return ClientHello{}, fmt.Errorf("%w: invalid extensions length", ErrInvalidClientHello)
	}
	for !extensions.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return ClientHello{}, fmt.Errorf("%w: invalid extension framing", ErrInvalidClientHello)
		}
		switch extType {
		case extServerName:
			names, err := parseServerNames(extData)
			if err != nil {
				return ClientHello{}, err
			}
			hello.ServerNames = names
		case extALPN:
			protos, err := parseALPN(extData)
			if err != nil {
				return ClientHello{}, err
			}
			hello.ALPN = protos
		default:
			if _, dup := hello.Extensions[extType]; dup {
				return ClientHello{}, fmt.Errorf("%w: duplicate extension %d", ErrInvalidClientHello, extType)
			}
			hello.Extensions[extType] = append([]byte(nil), extData...)
		}
	}

	return hello, nil
}

func parseServerNames(data cryptobyte.String) ([]ServerName, error) {
	var list cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&list) {
		return nil, fmt.Errorf("%w: invalid server_name list length", ErrInvalidClientHello)
	}
	var out []ServerName
	for !list.Empty() {
		var nameType uint8
		var host cryptobyte.String
		if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&host) {
			return nil, fmt.Errorf("%w: invalid server_name entry", ErrInvalidClientHello)
		}
		out = append(out, ServerName{Type: nameType, Host: string(host)})
	}
	return out, nil
}

func parseALPN(data cryptobyte.String) ([]string, error) {
	var list cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&list) {
		return nil, fmt.Errorf("%w: invalid ALPN list length", ErrInvalidClientHello)
	}
	var out []string
	for !list.Empty() {
		var proto cryptobyte.String
		if !list.ReadUint8LengthPrefixed(&proto) {
			return nil, fmt.Errorf("%w: invalid ALPN entry", ErrInvalidClientHello)
		}
		out = append(out, string(proto))
	}
	return out, nil
}
