package ws

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// WriteMessage serializes one frame of a data message (text/binary or a
// continuation of one), ported from frame_parser::serialize(message_frame).
// rsv1 should only be set true on the first frame of a compressed message
// (spec §4.H); the caller (the deflate extension) decides that.
func (c *Codec) WriteMessage(w io.Writer, opcode Opcode, payload []byte, fin bool, rsv1 bool) error {
	if err := c.trackOutbound(opcode, fin); err != nil {
		return err
	}
	return c.writeFrame(w, Frame{Fin: fin, RSV1: rsv1, Opcode: opcode, Payload: payload})
}

// WriteControl serializes a close/ping/pong frame, ported from
// frame_parser::serialize(close_frame/ping_frame/pong_frame). Control frames
// never fragment and never set RSV1.
func (c *Codec) WriteControl(w io.Writer, opcode Opcode, payload []byte) error {
	if !opcode.IsControl() {
		return ErrProtocolError
	}
	if len(payload) > maxControlPayload {
		return ErrFragmentedControl
	}
	return c.writeFrame(w, Frame{Fin: true, Opcode: opcode, Payload: payload})
}

// trackOutbound mirrors trackInbound for the write side: a continuation with
// no message in flight, or a new data frame while one is in flight, is the
// "unexpected opcode" error the original raises from serialize().
func (c *Codec) trackOutbound(opcode Opcode, fin bool) error {
	switch opcode {
	case OpcodeContinuation:
		if c.effectiveOpcodeOut == nil {
			return ErrUnexpectedContinuation
		}
	case OpcodeText, OpcodeBinary:
		if c.effectiveOpcodeOut != nil {
			return ErrUnexpectedContinuation
		}
	default:
		return ErrProtocolError
	}

	if fin {
		c.effectiveOpcodeOut = nil
		return nil
	}

	op := opcode
	if op == OpcodeContinuation {
		op = *c.effectiveOpcodeOut
	}
	c.effectiveOpcodeOut = &op
	return nil
}

// writeFrame encodes f's header, minimally-encoded payload length, mask key
// (server-bound only), and masked payload, then writes it in one call.
func (c *Codec) writeFrame(w io.Writer, f Frame) error {
	mask := c.Destination == EndpointServer

	b0 := byte(f.Opcode) & 0x0F
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}

	n := len(f.Payload)
	var lenBytes []byte
	b1 := byte(0)
	if mask {
		b1 |= 0x80
	}

	switch {
	case n < len16Marker:
		b1 |= byte(n)
	case n <= 0xFFFF:
		b1 |= len16Marker
		lenBytes = make([]byte, 2)
		binary.BigEndian.PutUint16(lenBytes, uint16(n))
	default:
		b1 |= len64Marker
		lenBytes = make([]byte, 8)
		binary.BigEndian.PutUint64(lenBytes, uint64(n))
	}

	buf := make([]byte, 0, 2+len(lenBytes)+4+n)
	buf = append(buf, b0, b1)
	buf = append(buf, lenBytes...)

	var maskKey [4]byte
	if mask {
		if _, err := rand.Read(maskKey[:]); err != nil {
			return err
		}
		buf = append(buf, maskKey[:]...)
	}

	if n > 0 {
		payload := f.Payload
		if mask {
			payload = make([]byte, n)
			copy(payload, f.Payload)
			applyMask(payload, maskKey)
		}
		buf = append(buf, payload...)
	}

	_, err := w.Write(buf)
	return err
}
