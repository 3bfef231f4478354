package ws

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/aetherproxy/aetherproxy/internal/intercept"
	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// Chunk sizes for re-fragmenting an intercepted message before forwarding
// (spec §4.I): client-bound frames leave room for the 4-byte mask key that
// never actually gets written (only client->server frames are masked), kept
// anyway to match the original's conservative sizing.
const (
	maxClientBoundChunk = 4092 - 4
	maxServerBoundChunk = 4092
)

// Message is one assembled WebSocket data message, interceptable through
// websocket_message.received. It implements intercept.Message structurally.
type Message struct {
	opcode  Opcode
	payload []byte
	blocked bool
}

func (m *Message) Opcode() int         { return int(m.opcode) }
func (m *Message) Payload() []byte     { return m.payload }
func (m *Message) SetPayload(p []byte) { m.payload = p }
func (m *Message) Block()              { m.blocked = true }
func (m *Message) Blocked() bool       { return m.blocked }

// View is the narrow per-direction handle to a Pipeline carried by
// websocket.* / websocket_message.* events. It implements intercept.Pipeline
// structurally, without internal/intercept importing this package.
type View struct {
	pipeline    *Pipeline
	destination Endpoint
}

func (v *View) Direction() string { return v.destination.String() }

// Pipeline owns the per-direction codecs, extensions, and close arbitration
// for one active WebSocket connection, ported from pipeline.hpp/cpp. A
// Pipeline is built once the HTTP upgrade handshake completes and runs for
// the lifetime of the WebSocket connection.
type Pipeline struct {
	ClientKey       string
	ClientProtocol  string
	ServerAccept    string
	ServerProtocol  string
	Extensions      []string
	ShouldIntercept bool

	dispatcher *intercept.Dispatcher
	flow       intercept.FlowInfo

	closeMu    sync.Mutex
	closed     atomic.Bool
	closedBy   Endpoint
	closeFrame CloseFrame

	toServer *direction
	toClient *direction
}

// NewPipeline builds a Pipeline for an already-upgraded connection.
// extensionsHeader is the raw Sec-WebSocket-Extensions value from the
// upstream response, used to negotiate permessage-deflate.
func NewPipeline(
	dispatcher *intercept.Dispatcher,
	flow intercept.FlowInfo,
	clientTransport, serverTransport transport.Transport,
	shouldIntercept bool,
	clientKey, clientProtocol, serverAccept, serverProtocol, extensionsHeader string,
) *Pipeline {
	p := &Pipeline{
		ClientKey:       clientKey,
		ClientProtocol:  clientProtocol,
		ServerAccept:    serverAccept,
		ServerProtocol:  serverProtocol,
		ShouldIntercept: shouldIntercept,
		dispatcher:      dispatcher,
		flow:            flow,
	}

	params, negotiated := ParseDeflateParams(extensionsHeader)
	if negotiated {
		p.Extensions = []string{"permessage-deflate"}
	}

	// A leg's own Deflate instance is stamped with the endpoint whose
	// compression settings govern it, since that's the peer the other side's
	// decompressor was negotiated to expect (see deflate.go's doc comment).
	var clientDeflate, serverDeflate *Deflate
	if negotiated {
		clientDeflate, _ = NewDeflate(EndpointClient, params)
		serverDeflate, _ = NewDeflate(EndpointServer, params)
	}

	p.toServer = &direction{
		pipeline:     p,
		destination:  EndpointServer,
		srcTransport: clientTransport,
		dstTransport: serverTransport,
		codec:        NewCodec(EndpointServer),
		deflate:      clientDeflate,
		maxChunk:     maxServerBoundChunk,
	}
	p.toClient = &direction{
		pipeline:     p,
		destination:  EndpointClient,
		srcTransport: serverTransport,
		dstTransport: clientTransport,
		codec:        NewCodec(EndpointClient),
		deflate:      serverDeflate,
		maxChunk:     maxClientBoundChunk,
	}
	if negotiated {
		p.toServer.codec.AllowRSV1 = true
		p.toClient.codec.AllowRSV1 = true
	}

	return p
}

// SetCloseState records which endpoint initiated closing and with what
// frame, ported from pipeline::set_close_state.
func (p *Pipeline) SetCloseState(closer Endpoint, frame CloseFrame) {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	p.closed.Store(true)
	p.closedBy = closer
	p.closeFrame = frame
}

// Closed reports whether either direction has seen a close frame.
func (p *Pipeline) Closed() bool { return p.closed.Load() }

// CloseState returns the recorded closer and close frame, if any.
func (p *Pipeline) CloseState() (closed bool, by Endpoint, frame CloseFrame) {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed.Load(), p.closedBy, p.closeFrame
}

func (p *Pipeline) other(d *direction) *direction {
	if d == p.toServer {
		return p.toClient
	}
	return p.toServer
}

func (p *Pipeline) fireMessage(d *direction, msg *Message) {
	if p.dispatcher == nil {
		return
	}
	p.dispatcher.WebSocketMessage.Fire(intercept.WebSocketMessageReceived, intercept.WebSocketMessagePayload{
		Flow:     p.flow,
		Pipeline: &View{pipeline: p, destination: d.destination},
		Message:  msg,
	})
}

func (p *Pipeline) fireLifecycle(event intercept.WebSocketEvent, err error) {
	if p.dispatcher == nil {
		return
	}
	p.dispatcher.WebSocket.Fire(event, intercept.WebSocketPayload{
		Flow:     p.flow,
		Pipeline: &View{pipeline: p, destination: EndpointServer},
		Err:      err,
	})
}

// Run drives both directions until one of them exits (peer close, transport
// error, or ctx cancellation), firing websocket.start/stop/error around the
// run. It blocks until both direction loops have returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.fireLifecycle(intercept.WebSocketStart, nil)

	errCh := make(chan error, 2)
	go func() { errCh <- p.toServer.run(ctx) }()
	go func() { errCh <- p.toClient.run(ctx) }()

	first := <-errCh
	p.toServer.srcTransport.Cancel()
	p.toClient.srcTransport.Cancel()
	second := <-errCh

	err := first
	if err == nil || err == io.EOF {
		err = second
	}
	if err != nil && err != io.EOF {
		p.fireLifecycle(intercept.WebSocketError, err)
		return err
	}
	p.fireLifecycle(intercept.WebSocketStop, nil)
	return nil
}

// direction is one half of a Pipeline: reads frames from srcTransport,
// validates/assembles/intercepts them, and forwards onward to dstTransport.
type direction struct {
	pipeline    *Pipeline
	destination Endpoint

	srcTransport transport.Transport
	dstTransport transport.Transport

	codec    *Codec
	deflate  *Deflate
	maxChunk int

	writeMu sync.Mutex

	assembling bool
	msgOpcode  Opcode
	msgBuf     []byte
}

func (d *direction) source() Endpoint {
	if d.destination == EndpointServer {
		return EndpointClient
	}
	return EndpointServer
}

func (d *direction) writeControl(ctx context.Context, opcode Opcode, payload []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.codec.WriteControl(&transportWriter{ctx: ctx, t: d.dstTransport}, opcode, payload)
}

func (d *direction) writeMessage(ctx context.Context, opcode Opcode, payload []byte, fin, rsv1 bool) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.codec.WriteMessage(&transportWriter{ctx: ctx, t: d.dstTransport}, opcode, payload, fin, rsv1)
}

// run is the main loop ported from spec §4.I / websocket_manager::parse: read
// a frame, dispatch by opcode, forward or inject as required, repeat until
// error or a close frame ends the connection.
func (d *direction) run(ctx context.Context) error {
	src := &transportReader{ctx: ctx, t: d.srcTransport}

	for {
		f, err := d.codec.ReadFrame(src)
		if err != nil {
			return err
		}

		switch f.Opcode {
		case OpcodePing:
			if err := d.writeControl(ctx, OpcodePing, f.Payload); err != nil {
				return err
			}
			other := d.pipeline.other(d)
			if err := other.writeControl(ctx, OpcodePong, f.Payload); err != nil {
				return err
			}

		case OpcodePong:
			if err := d.writeControl(ctx, OpcodePong, f.Payload); err != nil {
				return err
			}

		case OpcodeClose:
			d.pipeline.SetCloseState(d.source(), parseCloseFrame(f.Payload))
			_ = d.writeControl(ctx, OpcodeClose, f.Payload)
			return nil

		default:
			if err := d.handleMessageFrame(ctx, f); err != nil {
				return err
			}
		}
	}
}

// handleMessageFrame processes a text/binary/continuation frame: when not
// intercepting, it relays the frame unchanged; when intercepting, it
// decompresses, accumulates until fin, fires websocket_message.received, and
// re-fragments the (possibly rewritten) message before forwarding.
func (d *direction) handleMessageFrame(ctx context.Context, f Frame) error {
	if !f.Opcode.IsMessage() {
		return ErrProtocolError
	}

	if !d.pipeline.ShouldIntercept {
		return d.writeMessage(ctx, f.Opcode, f.Payload, f.Fin, f.RSV1)
	}

	payload := f.Payload
	if d.deflate != nil {
		if err := d.deflate.InboundHeader(f.Opcode, f.RSV1); err != nil {
			return err
		}
		var err error
		payload, err = d.deflate.Decompress(payload)
		if err != nil {
			return err
		}
		d.deflate.InboundComplete(f.Fin)
	}

	if !d.assembling {
		d.assembling = true
		d.msgOpcode = f.EffectiveOpcode
		d.msgBuf = nil
	}
	d.msgBuf = append(d.msgBuf, payload...)

	if !f.Fin {
		return nil
	}
	d.assembling = false

	msg := &Message{opcode: d.msgOpcode, payload: d.msgBuf}
	d.pipeline.fireMessage(d, msg)

	if msg.Blocked() {
		return nil
	}
	return d.forwardAssembled(ctx, msg.opcode, msg.Payload())
}

// forwardAssembled compresses the whole message once, if an extension is
// negotiated, then splits the resulting bytes into at most d.maxChunk-sized
// frames. Compressing before chunking (rather than per-chunk) keeps the
// message a single deflate stream, matching on_outbound_frame's one
// compress-per-message contract; RSV1 is only ever set on the first frame.
func (d *direction) forwardAssembled(ctx context.Context, opcode Opcode, payload []byte) error {
	out := payload
	firstFrameRSV1 := false
	if d.deflate != nil {
		var err error
		out, firstFrameRSV1, err = d.deflate.Compress(opcode, payload)
		if err != nil {
			return err
		}
	}

	chunks := chunkPayload(out, d.maxChunk)
	for i, part := range chunks {
		frameOpcode := opcode
		if i > 0 {
			frameOpcode = OpcodeContinuation
		}
		fin := i == len(chunks)-1
		rsv1 := firstFrameRSV1 && i == 0

		if err := d.writeMessage(ctx, frameOpcode, part, fin, rsv1); err != nil {
			return err
		}
	}
	return nil
}

func chunkPayload(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}

func parseCloseFrame(payload []byte) CloseFrame {
	if len(payload) < 2 {
		return CloseFrame{Code: CloseNoStatusReceived}
	}
	return CloseFrame{
		Code:   CloseCode(binary.BigEndian.Uint16(payload[:2])),
		Reason: string(payload[2:]),
	}
}

// transportReader/transportWriter adapt a transport.Transport, which takes a
// context per call, to the io.Reader/io.Writer the frame codec expects.
type transportReader struct {
	ctx context.Context
	t   transport.Transport
}

func (r *transportReader) Read(p []byte) (int, error) {
	return r.t.Read(r.ctx, p)
}

type transportWriter struct {
	ctx context.Context
	t   transport.Transport
}

func (w *transportWriter) Write(p []byte) (int, error) {
	return w.t.Write(w.ctx, p)
}
