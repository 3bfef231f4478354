package tlshello

import (
	"bufio"
	"bytes"
	"testing"
)

// buildClientHello assembles a minimal but structurally valid TLS 1.2
// record-layer ClientHello carrying a single server_name extension and an
// ALPN extension, mirroring the wire shape parsed by client_hello.cpp.
func buildClientHello(host string, alpn []string) []byte {
	var hs bytes.Buffer
	hs.Write([]byte{0x03, 0x03}) // client_version
	hs.Write(make([]byte, 32))   // random
	hs.WriteByte(0)              // session_id length 0

	hs.Write([]byte{0x00, 0x02, 0x00, 0x2f}) // cipher_suites length=2, one suite
	hs.Write([]byte{0x01, 0x00})             // compression_methods length=1, null

	var extensions bytes.Buffer

	var snList bytes.Buffer
	snList.WriteByte(0x00) // name type host_name
	snList.Write([]byte{byte(len(host) >> 8), byte(len(host))})
	snList.WriteString(host)

	var snExt bytes.Buffer
	snExt.Write([]byte{byte(snList.Len() >> 8), byte(snList.Len())})
	snExt.Write(snList.Bytes())

	extensions.Write([]byte{0x00, 0x00}) // extension type server_name
	extensions.Write([]byte{byte(snExt.Len() >> 8), byte(snExt.Len())})
	extensions.Write(snExt.Bytes())

	if len(alpn) > 0 {
		var protoList bytes.Buffer
		for _, p := range alpn {
			protoList.WriteByte(byte(len(p)))
			protoList.WriteString(p)
		}
		var alpnExt bytes.Buffer
		alpnExt.Write([]byte{byte(protoList.Len() >> 8), byte(protoList.Len())})
		alpnExt.Write(protoList.Bytes())

		extensions.Write([]byte{0x00, 0x10}) // extension type ALPN
		extensions.Write([]byte{byte(alpnExt.Len() >> 8), byte(alpnExt.Len())})
		extensions.Write(alpnExt.Bytes())
	}

	hs.Write([]byte{byte(extensions.Len() >> 8), byte(extensions.Len())})
	hs.Write(extensions.Bytes())

	handshakeLen := hs.Len()
	var handshake bytes.Buffer
	handshake.WriteByte(handshakeTypeClientHello)
	handshake.Write([]byte{byte(handshakeLen >> 16), byte(handshakeLen >> 8), byte(handshakeLen)})
	handshake.Write(hs.Bytes())

	recordLen := handshake.Len()
	var record bytes.Buffer
	record.WriteByte(recordTypeHandshake)
	record.Write([]byte{0x03, 0x01})
	record.Write([]byte{byte(recordLen >> 8), byte(recordLen)})
	record.Write(handshake.Bytes())

	return record.Bytes()
}

func TestReadClientHelloPreservesBytes(t *testing.T) {
	raw := buildClientHello("example.test", []string{"h2", "http/1.1"})
	trailing := []byte("not part of this record")
	stream := append(append([]byte(nil), raw...), trailing...)

	br := bufio.NewReader(bytes.NewReader(stream))
	hello, err := Read(br)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	sni, ok := hello.SNI()
	if !ok || sni != "example.test" {
		t.Fatalf("expected SNI example.test, got %q ok=%v", sni, ok)
	}
	if len(hello.ALPN) != 2 || hello.ALPN[0] != "h2" || hello.ALPN[1] != "http/1.1" {
		t.Fatalf("unexpected ALPN: %v", hello.ALPN)
	}

	// Non-destructiveness: every byte of the original stream, including what
	// comes after the ClientHello record, must still be readable from br.
	remainder := make([]byte, len(stream))
	n, err := br.Read(remainder)
	if err != nil && n == 0 {
		t.Fatalf("read after peek: %v", err)
	}
	for n < len(stream) {
		m, err := br.Read(remainder[n:])
		n += m
		if err != nil {
			break
		}
	}
	if !bytes.Equal(remainder[:n], stream) {
		t.Fatalf("peeked ClientHello consumed or corrupted the underlying stream")
	}
}

func TestReadClientHelloRejectsShortRecord(t *testing.T) {
	_, err := Read(bufio.NewReader(bytes.NewReader([]byte{0x16, 0x03, 0x01})))
	if err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestReadClientHelloRejectsNonHandshakeRecord(t *testing.T) {
	raw := buildClientHello("example.test", nil)
	raw[0] = 0x17 // application_data, not handshake
	_, err := Read(bufio.NewReader(bytes.NewReader(raw)))
	if err == nil {
		t.Fatalf("expected error for non-handshake record type")
	}
}

func TestReadClientHelloWithoutALPN(t *testing.T) {
	raw := buildClientHello("nohello.test", nil)
	hello, err := Read(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(hello.ALPN) != 0 {
		t.Fatalf("expected no ALPN protocols, got %v", hello.ALPN)
	}
	sni, ok := hello.SNI()
	if !ok || sni != "nohello.test" {
		t.Fatalf("expected SNI nohello.test, got %q ok=%v", sni, ok)
	}
}
