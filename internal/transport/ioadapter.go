package transport

import (
	"context"
	"io"
)

// ctxReader/ctxWriter bind a fixed context to every call so a Transport can
// be handed to stdlib code (bufio.Reader, io.Copy, crypto/tls handshakes via
// the peeked net.Conn in peeked.go) that only knows io.Reader/io.Writer.
type ctxReader struct {
	ctx context.Context
	t   Transport
}

func (r ctxReader) Read(p []byte) (int, error) { return r.t.Read(r.ctx, p) }

type ctxWriter struct {
	ctx context.Context
	t   Transport
}

func (w ctxWriter) Write(p []byte) (int, error) { return w.t.Write(w.ctx, p) }

// Reader adapts t into an io.Reader whose reads are bound to ctx.
func Reader(ctx context.Context, t Transport) io.Reader { return ctxReader{ctx, t} }

// Writer adapts t into an io.Writer whose writes are bound to ctx.
func Writer(ctx context.Context, t Transport) io.Writer { return ctxWriter{ctx, t} }
