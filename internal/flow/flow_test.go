package flow

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/aetherproxy/aetherproxy/internal/httpmsg"
	"github.com/aetherproxy/aetherproxy/internal/intercept"
	"github.com/aetherproxy/aetherproxy/internal/transport"
)

func newTestFlow(t *testing.T, clientConn net.Conn, opts Options) (*Flow, *transport.Pair, *intercept.Dispatcher) {
	t.Helper()
	pair := transport.NewPair(transport.NewPlain(clientConn))
	dispatcher := intercept.NewDispatcher()
	f := New(1, clientConn.RemoteAddr().String(), pair, dispatcher, nil, opts, nil)
	return f, pair, dispatcher
}

// TestStateHTTPProxyForwardsRequestAndResponse drives a plain-HTTP exchange
// through an already-connected pair (no real dial), asserting both
// http.request and http.response interceptors fire exactly once and that the
// server's response reaches the client verbatim.
func TestStateHTTPProxyForwardsRequestAndResponse(t *testing.T) {
	clientProxy, clientTest := net.Pipe()
	serverProxy, serverTest := net.Pipe()
	defer clientTest.Close()
	defer serverTest.Close()

	f, pair, dispatcher := newTestFlow(t, clientProxy, Options{})
	pair.SetServer(transport.NewPlain(serverProxy))

	var sawRequest, sawResponse int
	dispatcher.HTTP.Attach(intercept.HTTPRequest, func(p intercept.HTTPPayload) { sawRequest++ })
	dispatcher.HTTP.Attach(intercept.HTTPResponse, func(p intercept.HTTPPayload) { sawResponse++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	clientTest.SetDeadline(time.Now().Add(2 * time.Second))
	serverTest.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := clientTest.Write([]byte("GET /widgets HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	serverReader := bufio.NewReader(serverTest)
	req, err := httpmsg.ParseRequest(serverReader, 0)
	if err != nil {
		t.Fatalf("server parse request: %v", err)
	}
	if req.Target.Path != "/widgets" {
		t.Fatalf("got path %q", req.Target.Path)
	}

	if _, err := serverTest.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")); err != nil {
		t.Fatalf("write response: %v", err)
	}

	clientReader := bufio.NewReader(clientTest)
	resp, err := httpmsg.ParseResponse(clientReader, 0, false)
	if err != nil {
		t.Fatalf("client parse response: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Fatalf("got status %d body %q", resp.Status, resp.Body)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete after Connection: close")
	}

	if sawRequest != 1 || sawResponse != 1 {
		t.Fatalf("got sawRequest=%d sawResponse=%d, want 1/1", sawRequest, sawResponse)
	}
}

// TestHandleConnectSSLPassthroughStrictTunnelsRawBytes exercises the CONNECT
// => 200 => opaque tunnel path against a real loopback listener standing in
// for the upstream target, verifying bytes pass through unmodified in both
// directions and that server.connect/server.disconnect each fire once.
func TestHandleConnectSSLPassthroughStrictTunnelsRawBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	upstreamDone := make(chan struct{})
	go func() {
		defer close(upstreamDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b := make([]byte, 5)
		n, err := conn.Read(b)
		if err != nil {
			return
		}
		conn.Write(b[:n])
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())

	clientProxy, clientTest := net.Pipe()
	defer clientTest.Close()

	f, _, dispatcher := newTestFlow(t, clientProxy, Options{SSLPassthroughStrict: true})

	var connects, disconnects int
	dispatcher.Server.Attach(intercept.ServerConnect, func(p intercept.ServerPayload) { connects++ })
	dispatcher.Server.Attach(intercept.ServerDisconnect, func(p intercept.ServerPayload) { disconnects++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	clientTest.SetDeadline(time.Now().Add(2 * time.Second))

	connectReq := "CONNECT " + host + ":" + port + " HTTP/1.1\r\nHost: " + host + ":" + port + "\r\n\r\n"
	if _, err := clientTest.Write([]byte(connectReq)); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	clientReader := bufio.NewReader(clientTest)
	resp, err := httpmsg.ParseResponse(clientReader, 0, false)
	if err != nil {
		t.Fatalf("parse CONNECT response: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("got CONNECT status %d, want 200", resp.Status)
	}

	if _, err := clientTest.Write([]byte("abcde")); err != nil {
		t.Fatalf("write tunnel bytes: %v", err)
	}
	echoed := make([]byte, 5)
	if _, err := clientReader.Read(echoed); err != nil {
		t.Fatalf("read echoed tunnel bytes: %v", err)
	}
	if string(echoed) != "abcde" {
		t.Fatalf("got echoed %q, want \"abcde\"", echoed)
	}

	clientTest.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete after client closed")
	}
	<-upstreamDone

	if connects != 1 || disconnects != 1 {
		t.Fatalf("got connects=%d disconnects=%d, want 1/1", connects, disconnects)
	}
}

// TestRespondGatewayErrorSynthesizes502Or504 checks the failure path spec §4.E
// describes for an upstream that was never reached: no real response is
// read, http.error fires, and a synthesized 502 (or 504, when the dial times
// out) is written to the client.
func TestRespondGatewayErrorSynthesizes502Or504(t *testing.T) {
	clientProxy, clientTest := net.Pipe()
	defer clientTest.Close()

	f, _, dispatcher := newTestFlow(t, clientProxy, Options{Timeout: 50 * time.Millisecond})

	var gotErr error
	dispatcher.HTTP.Attach(intercept.HTTPError, func(p intercept.HTTPPayload) { gotErr = p.Flow.Err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := &httpmsg.Request{
		Method:  httpmsg.MethodGet,
		Target:  httpmsg.URL{Path: "/"},
		Version: httpmsg.Version{Major: 1, Minor: 1},
		Header:  httpmsg.NewHeader(),
	}
	exch := &httpmsg.Exchange{Request: req}

	// 198.51.100.1 is TEST-NET-2 (RFC 5737): guaranteed unroutable, so the
	// dial fails fast without depending on external network state.
	dialErr := f.forwardToUpstream(ctx, exch, "198.51.100.1", "81")
	if dialErr == nil {
		t.Fatal("expected dial to unroutable test-net address to fail")
	}

	clientTest.SetDeadline(time.Now().Add(2 * time.Second))
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.respondGatewayError(ctx, exch, dialErr)
	}()

	clientReader := bufio.NewReader(clientTest)
	resp, err := httpmsg.ParseResponse(clientReader, 0, false)
	if err != nil {
		t.Fatalf("parse synthesized response: %v", err)
	}
	<-done

	if resp.Status != 502 && resp.Status != 504 {
		t.Fatalf("got status %d, want 502 or 504", resp.Status)
	}
	if !resp.Synthesized {
		t.Fatal("expected Synthesized to be true")
	}
	if gotErr == nil {
		t.Fatal("expected http.error interceptor to observe the dial error")
	}
}

// TestMakeResponseShortCircuitsUpstream verifies that an http.request
// interceptor calling MakeResponse skips forwardToUpstream entirely: the
// pair never needs a server side attached at all.
func TestMakeResponseShortCircuitsUpstream(t *testing.T) {
	clientProxy, clientTest := net.Pipe()
	defer clientTest.Close()

	f, _, dispatcher := newTestFlow(t, clientProxy, Options{})

	dispatcher.HTTP.Attach(intercept.HTTPRequest, func(p intercept.HTTPPayload) {
		p.MakeResponse(&httpmsg.Response{
			Version: httpmsg.Version{Major: 1, Minor: 1},
			Status:  204,
			Header:  httpmsg.NewHeader(),
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	clientTest.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := clientTest.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	clientReader := bufio.NewReader(clientTest)
	resp, err := httpmsg.ParseResponse(clientReader, 0, false)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Status != 204 {
		t.Fatalf("got status %d, want 204 (synthesized, no upstream dial)", resp.Status)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete")
	}
}

func TestDecideTLSSpliceRules(t *testing.T) {
	cases := []struct {
		name   string
		opts   Options
		intercept bool
		want   bool
	}{
		{"strict always tunnels", Options{SSLPassthroughStrict: true}, true, false},
		{"passthrough without intercept tunnels", Options{SSLPassthrough: true}, false, false},
		{"passthrough with intercept splices", Options{SSLPassthrough: true}, true, true},
		{"default splices", Options{}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Flow{Options: tc.opts, interceptTLS: tc.intercept}
			if got := f.decideTLSSplice(); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveOriginFormTarget(t *testing.T) {
	f := &Flow{}

	req := &httpmsg.Request{Target: httpmsg.URL{}, Header: httpmsg.NewHeader()}
	req.Header.Set("Host", "example.com:8080")
	host, port := f.resolveOriginFormTarget(req)
	if host != "example.com" || port != "8080" {
		t.Fatalf("got %q:%q from Host header", host, port)
	}

	abs := &httpmsg.Request{Target: httpmsg.URL{Host: "proxied.example", Port: "8443"}, Header: httpmsg.NewHeader()}
	host, port = f.resolveOriginFormTarget(abs)
	if host != "proxied.example" || port != "8443" {
		t.Fatalf("got %q:%q from absolute-form target", host, port)
	}

	none := &httpmsg.Request{Target: httpmsg.URL{}, Header: httpmsg.NewHeader()}
	host, _ = f.resolveOriginFormTarget(none)
	if host != "" {
		t.Fatalf("got host %q, want empty", host)
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	req := &httpmsg.Request{Header: httpmsg.NewHeader()}
	if isWebSocketUpgrade(req) {
		t.Fatal("bare request should not look like an upgrade")
	}
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	if !isWebSocketUpgrade(req) {
		t.Fatal("expected Upgrade/Connection headers to be recognized")
	}
}

func TestParseURLSmokeForHostHeader(t *testing.T) {
	u, err := httpmsg.ParseURL("example.com")
	if err != nil {
		t.Fatalf("parse bare host: %v", err)
	}
	if u.Host != "example.com" || u.Port != "" {
		t.Fatalf("got host=%q port=%q", u.Host, u.Port)
	}
}
