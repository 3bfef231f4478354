package httpmsg

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	raw := "GET http://example.test/ HTTP/1.1\r\nHost: example.test\r\nAccept: */*\r\n\r\n"
	req, err := ParseRequest(bufio.NewReader(bytes.NewReader([]byte(raw))), 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	out := req.Serialize()

	req2, err := ParseRequest(bufio.NewReader(bytes.NewReader(out)), 0)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if req2.Method != req.Method || req2.Target.String() != req.Target.String() {
		t.Fatalf("round trip mismatch:\n%s", strings.Join(pretty.Diff(req, req2), "\n"))
	}
	if v, _ := req2.Header.Get("Host"); v != "example.test" {
		t.Fatalf("expected Host header preserved, got %q", v)
	}
}

func TestChunkedRequestDecodesToPlainBody(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	req, err := ParseRequest(bufio.NewReader(bytes.NewReader([]byte(raw))), 0)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if string(req.Body) != "Wikipedia" {
		t.Fatalf("expected dechunked body, got %q", req.Body)
	}
	// Re-serialized without chunked framing, Content-Length should be set.
	req.Header.Del("Transfer-Encoding")
	out := req.Serialize()
	req2, err := ParseRequest(bufio.NewReader(bytes.NewReader(out)), 0)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if string(req2.Body) != "Wikipedia" {
		t.Fatalf("expected body preserved after re-chunk normalization, got %q", req2.Body)
	}
}

func TestBodyTooLarge(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\n0123456789"
	_, err := ParseRequest(bufio.NewReader(bytes.NewReader([]byte(raw))), 4)
	if err != ErrBodyTooLarge {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestInvalidMethod(t *testing.T) {
	raw := "FROB / HTTP/1.1\r\nHost: h\r\n\r\n"
	_, err := ParseRequest(bufio.NewReader(bytes.NewReader([]byte(raw))), 0)
	if err != ErrInvalidMethod {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestHeaderCaseInsensitiveAndOrdered(t *testing.T) {
	h := NewHeader()
	h.Add("X-Foo", "1")
	h.Add("x-foo", "2")
	values := h.Values("X-FOO")
	if len(values) != 2 || values[0] != "1" || values[1] != "2" {
		t.Fatalf("expected ordered duplicate values, got %v", values)
	}
}

func TestStripH2c(t *testing.T) {
	h := NewHeader()
	h.Add("Connection", "Upgrade")
	h.Add("Upgrade", "h2c")
	StripH2c(h)
	if h.Has("Upgrade") {
		t.Fatalf("expected Upgrade header removed")
	}
}
