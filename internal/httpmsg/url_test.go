package httpmsg

import "testing"

func TestParseURLAbsoluteForm(t *testing.T) {
	u, err := ParseURL("http://example.test:8080/a/b?q=1#frag")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if u.Scheme != "http" || u.Host != "example.test" || u.Port != "8080" {
		t.Fatalf("unexpected parse: %+v", u)
	}
	if u.Path != "/a/b" || u.Query != "q=1" || u.Fragment != "frag" {
		t.Fatalf("unexpected parse: %+v", u)
	}
}

func TestParseURLConnectForm(t *testing.T) {
	u, err := ParseURL("example.test:443")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if u.Host != "example.test" || u.Port != "443" {
		t.Fatalf("unexpected parse: %+v", u)
	}
}

func TestIsHostCaseInsensitive(t *testing.T) {
	u, _ := ParseURL("http://Example.TEST/")
	if !u.IsHost("example.test") {
		t.Fatalf("expected case-insensitive host match")
	}
}

func TestPortOrDefault(t *testing.T) {
	u, _ := ParseURL("https://example.test/")
	if u.PortOrDefault("") != "443" {
		t.Fatalf("expected default https port 443, got %q", u.PortOrDefault(""))
	}
}

func TestParseSetCookieDropsMalformed(t *testing.T) {
	if _, ok := ParseSetCookie("   "); ok {
		t.Fatalf("expected malformed cookie to be dropped")
	}
	c, ok := ParseSetCookie("sid=abc123; Path=/; Secure")
	if !ok {
		t.Fatalf("expected valid cookie to parse")
	}
	if c.Name != "sid" || c.Value != "abc123" {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if !c.Attributes.Has("Secure") {
		t.Fatalf("expected Secure attribute present")
	}
}
