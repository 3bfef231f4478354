package transport

import (
	"bufio"
	"net"
)

// peekedConn layers a net.Conn under a bufio.Reader that has already peeked
// (not consumed) some of its bytes, so a later direct consumer of the
// net.Conn — crypto/tls.Server performing the actual TLS handshake after
// internal/tlshello peeked the ClientHello — sees the identical byte stream
// rather than missing the bytes sitting in the bufio.Reader's buffer.
type peekedConn struct {
	net.Conn
	br *bufio.Reader
}

// NewPeekedConn returns a net.Conn whose Read drains br's buffered bytes
// before falling through to nc's own reads. Write, Close, and deadlines
// pass straight through to nc.
func NewPeekedConn(nc net.Conn, br *bufio.Reader) net.Conn {
	return &peekedConn{Conn: nc, br: br}
}

func (c *peekedConn) Read(p []byte) (int, error) {
	return c.br.Read(p)
}
