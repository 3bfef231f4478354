package flow

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/aetherproxy/aetherproxy/internal/httpmsg"
	"github.com/aetherproxy/aetherproxy/internal/intercept"
	"github.com/aetherproxy/aetherproxy/internal/transport"
	"github.com/aetherproxy/aetherproxy/internal/ws"
)

// stateHTTPProxy parses one request off the client stream and either
// dispatches a CONNECT, upgrades to a WebSocket pipeline, or replays a
// normal request/response exchange through the interceptor chain before
// looping back for the next request on a keep-alive connection (spec
// §4.E "HttpProxy" node).
func (f *Flow) stateHTTPProxy(ctx context.Context) (state, error) {
	req, err := httpmsg.ParseRequest(f.br, f.Options.BodySizeLimit)
	if err != nil {
		return stateClosing, err
	}

	if req.Method == httpmsg.MethodConnect {
		return f.handleConnect(ctx, req)
	}

	host, port := f.resolveOriginFormTarget(req)
	if host == "" {
		return stateClosing, f.respondBadRequest(ctx, req, errors.New("flow: no Host header and no absolute-form target"))
	}

	httpmsg.StripH2c(req.Header)

	exch := &httpmsg.Exchange{Request: req}
	f.fireHTTPRequest(exch)

	upgrade := isWebSocketUpgrade(req)
	if upgrade {
		f.fireHTTPWebSocketHandshake(exch)
	}

	if exch.Response == nil {
		if err := f.forwardToUpstream(ctx, exch, host, port); err != nil {
			return stateClosing, f.respondGatewayError(ctx, exch, err)
		}
	}

	f.fireHTTPResponse(exch)

	if _, err := f.Pair.Client.Write(ctx, exch.Response.Serialize()); err != nil {
		return stateClosing, err
	}

	if upgrade && int(exch.Response.Status) == 101 {
		return f.enterWebSocket(ctx, exch)
	}

	if !httpmsg.KeepAlive(req.Header, exch.Response.Header, req.Version) {
		return stateClosing, nil
	}
	return stateHTTPProxy, nil
}

// handleConnect replies 200 to a CONNECT request and hands control to
// MaybeTls (spec §4.E's CONNECT decision rules live there, since they
// require inspecting whatever bytes the client sends next). When
// ssl_passthrough_strict is set the proxy skips that inspection entirely
// and tunnels the target immediately, matching the diagram's direct
// "CONNECT => ConnectTunnel" edge.
func (f *Flow) handleConnect(ctx context.Context, req *httpmsg.Request) (state, error) {
	host := req.Target.Host
	port := req.Target.PortOrDefault("443")
	if host == "" {
		return stateClosing, f.respondBadRequest(ctx, req, errors.New("flow: CONNECT target missing host"))
	}
	f.Pair.TargetHost, f.Pair.TargetPort = host, port

	f.fireHTTPConnect(&httpmsg.Exchange{Request: req})

	resp := &httpmsg.Response{Version: req.Version, Status: 200, Header: httpmsg.NewHeader()}
	if _, err := f.Pair.Client.Write(ctx, resp.Serialize()); err != nil {
		return stateClosing, err
	}

	// Re-peek the post-CONNECT stream from scratch: the client's next bytes
	// (TLS ClientHello, or nothing at all if this is a raw tunnel) have not
	// been read yet.
	f.br = bufio.NewReader(transport.Reader(ctx, f.Pair.Client))

	if f.Options.SSLPassthroughStrict {
		if err := f.dialServer(ctx, host, port, false, transport.ClientTLSArgs{}); err != nil {
			return stateClosing, err
		}
		return stateConnectTunnel, nil
	}
	return stateMaybeTLS, nil
}

// forwardToUpstream dials the target if not already connected, serializes
// exch.Request to it, and parses the response back. Errors here are always
// "before any bytes were sent to the client" (the caller hasn't written a
// response yet), so the caller synthesizes 502/504 rather than closing raw.
func (f *Flow) forwardToUpstream(ctx context.Context, exch *httpmsg.Exchange, host, port string) error {
	if !f.Pair.Connected() {
		dialCtx, cancel := context.WithTimeout(ctx, f.Options.timeout())
		err := f.dialServer(dialCtx, host, port, false, transport.ClientTLSArgs{})
		cancel()
		if err != nil {
			return err
		}
		f.serverBR = bufio.NewReader(transport.Reader(ctx, f.Pair.Server))
	}

	if _, err := f.Pair.Server.Write(ctx, exch.Request.Serialize()); err != nil {
		return err
	}

	noBody := exch.Request.Method == httpmsg.MethodHead
	resp, err := httpmsg.ParseResponse(f.serverBR, f.Options.BodySizeLimit, noBody)
	if err != nil {
		return err
	}
	exch.Response = resp
	return nil
}

// respondGatewayError synthesizes the 502/504 spec §4.E calls for when the
// request never reached upstream, fires http.error, and writes it to the
// client. The flow always closes afterward rather than attempting
// keep-alive against a connection whose upstream just failed.
func (f *Flow) respondGatewayError(ctx context.Context, exch *httpmsg.Exchange, cause error) error {
	status := httpmsg.Status(502)
	if errors.Is(cause, transport.ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		status = httpmsg.Status(504)
	}
	resp := &httpmsg.Response{
		Version:     exch.Request.Version,
		Status:      status,
		Header:      httpmsg.NewHeader(),
		Body:        []byte(fmt.Sprintf("%d %s: %v", int(status), status.Reason(), cause)),
		Synthesized: true,
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	exch.Response = resp

	f.fireHTTPError(exch, cause)

	if _, err := f.Pair.Client.Write(ctx, resp.Serialize()); err != nil {
		return err
	}
	return cause
}

// respondBadRequest handles spec §4.E's "no Host / proxy-form fail" edge:
// there is no exchange worth replaying through interceptors since the
// request couldn't even be routed.
func (f *Flow) respondBadRequest(ctx context.Context, req *httpmsg.Request, cause error) error {
	exch := &httpmsg.Exchange{Request: req}
	resp := &httpmsg.Response{
		Version:     req.Version,
		Status:      httpmsg.Status(400),
		Header:      httpmsg.NewHeader(),
		Body:        []byte(cause.Error()),
		Synthesized: true,
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	exch.Response = resp
	f.fireHTTPError(exch, cause)
	if _, err := f.Pair.Client.Write(ctx, resp.Serialize()); err != nil {
		return err
	}
	return cause
}

func (f *Flow) resolveOriginFormTarget(req *httpmsg.Request) (host, port string) {
	if req.Target.Host != "" {
		return req.Target.Host, req.Target.PortOrDefault("80")
	}
	if raw, ok := req.Header.Get("Host"); ok {
		u, err := httpmsg.ParseURL(raw)
		if err == nil && u.Host != "" {
			return u.Host, u.PortOrDefault("80")
		}
	}
	return "", ""
}

func isWebSocketUpgrade(req *httpmsg.Request) bool {
	return req.Header.HasToken("Upgrade", "websocket") && req.Header.HasToken("Connection", "upgrade")
}

// decideWSIntercept mirrors decideTLSSplice for WebSocket message
// interception (spec §4.E's ws_passthrough trio, §4.I).
func (f *Flow) decideWSIntercept() bool {
	if f.Options.WSPassthroughStrict {
		return false
	}
	if f.Options.WSPassthrough {
		return f.interceptWebSocket
	}
	return f.Options.WSInterceptDefault
}

// enterWebSocket builds the internal/ws frame pipeline for the now-upgraded
// connection and hands off to stateWebSocketActive (spec §4.E "HttpProxy on
// Upgrade: websocket => pass 101 response to client; enter
// WebSocketActive").
func (f *Flow) enterWebSocket(ctx context.Context, exch *httpmsg.Exchange) (state, error) {
	clientKey, _ := exch.Request.Header.Get("Sec-WebSocket-Key")
	clientProtocol, _ := exch.Request.Header.Get("Sec-WebSocket-Protocol")
	serverAccept, _ := exch.Response.Header.Get("Sec-WebSocket-Accept")
	serverProtocol, _ := exch.Response.Header.Get("Sec-WebSocket-Protocol")
	extHeader, _ := exch.Response.Header.Get("Sec-WebSocket-Extensions")

	f.wsPipeline = ws.NewPipeline(
		f.Dispatcher,
		f.flowInfo(),
		f.Pair.Client,
		f.Pair.Server,
		f.decideWSIntercept(),
		clientKey, clientProtocol, serverAccept, serverProtocol, extHeader,
	)
	return stateWebSocketActive, nil
}

// stateWebSocketActive runs the frame pipeline to completion. Either side
// closing, or a frame protocol error, ends the flow (spec §4.I).
func (f *Flow) stateWebSocketActive(ctx context.Context) (state, error) {
	err := f.wsPipeline.Run(ctx)
	return stateClosing, err
}

func (f *Flow) fireHTTPRequest(exch *httpmsg.Exchange) {
	f.Dispatcher.HTTP.Fire(intercept.HTTPRequest, f.httpPayload(exch))
	f.Dispatcher.HTTP.Fire(intercept.HTTPAnyRequest, f.httpPayload(exch))
}

func (f *Flow) fireHTTPConnect(exch *httpmsg.Exchange) {
	f.Dispatcher.HTTP.Fire(intercept.HTTPConnect, f.httpPayload(exch))
	f.Dispatcher.HTTP.Fire(intercept.HTTPAnyRequest, f.httpPayload(exch))
}

func (f *Flow) fireHTTPWebSocketHandshake(exch *httpmsg.Exchange) {
	f.Dispatcher.HTTP.Fire(intercept.HTTPWebSocketHandshake, f.httpPayload(exch))
}

func (f *Flow) fireHTTPResponse(exch *httpmsg.Exchange) {
	f.Dispatcher.HTTP.Fire(intercept.HTTPResponse, f.httpPayload(exch))
}

func (f *Flow) fireHTTPError(exch *httpmsg.Exchange, err error) {
	info := f.flowInfo()
	info.Err = err
	f.Dispatcher.HTTP.Fire(intercept.HTTPError, intercept.HTTPPayload{Flow: info, Exchange: exch})
}

func (f *Flow) httpPayload(exch *httpmsg.Exchange) intercept.HTTPPayload {
	return intercept.HTTPPayload{Flow: f.flowInfo(), Exchange: exch}
}
