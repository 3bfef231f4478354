package ws

import (
	"bytes"
	"testing"
)

func TestClientFrameMaskRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	writer := NewCodec(EndpointServer) // server-bound frames must be masked
	payload := []byte("hello from the client")

	if err := writer.WriteMessage(&wire, OpcodeText, payload, true, false); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	reader := NewCodec(EndpointServer)
	f, err := reader.ReadFrame(&wire)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !f.Masked {
		t.Fatalf("expected server-bound frame to be masked on the wire")
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch after unmasking: got %q want %q", f.Payload, payload)
	}
	if f.EffectiveOpcode != OpcodeText {
		t.Fatalf("expected effective opcode text, got %v", f.EffectiveOpcode)
	}
}

func TestServerFrameNotMasked(t *testing.T) {
	var wire bytes.Buffer
	writer := NewCodec(EndpointClient)
	if err := writer.WriteMessage(&wire, OpcodeBinary, []byte{1, 2, 3}, true, false); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	reader := NewCodec(EndpointClient)
	f, err := reader.ReadFrame(&wire)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Masked {
		t.Fatalf("client-bound frames must not be masked")
	}
}

func TestReadFrameRejectsWrongDirectionMask(t *testing.T) {
	var wire bytes.Buffer
	// Write as server-bound (masked), then try to read it as client-bound.
	writer := NewCodec(EndpointServer)
	if err := writer.WriteMessage(&wire, OpcodeText, []byte("x"), true, false); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	reader := NewCodec(EndpointClient)
	if _, err := reader.ReadFrame(&wire); err != ErrUnexpectedMask {
		t.Fatalf("expected ErrUnexpectedMask, got %v", err)
	}
}

func TestControlFrameConstraints(t *testing.T) {
	codec := NewCodec(EndpointServer)
	var wire bytes.Buffer

	big := make([]byte, 126)
	if err := codec.WriteControl(&wire, OpcodePing, big); err != ErrFragmentedControl {
		t.Fatalf("expected ErrFragmentedControl for an oversized ping, got %v", err)
	}

	if err := codec.WriteControl(&wire, OpcodeClose, make([]byte, 125)); err != nil {
		t.Fatalf("125-byte control payload should be allowed: %v", err)
	}
}

func TestContinuationRequiresInProgressMessage(t *testing.T) {
	var wire bytes.Buffer
	// Hand-craft a masked continuation frame with no preceding first frame.
	wire.Write([]byte{0x80 | byte(OpcodeContinuation), 0x80 | 0x01})
	wire.Write([]byte{0, 0, 0, 0}) // mask key
	wire.Write([]byte{'x'})

	codec := NewCodec(EndpointServer)
	if _, err := codec.ReadFrame(&wire); err != ErrUnexpectedContinuation {
		t.Fatalf("expected ErrUnexpectedContinuation, got %v", err)
	}
}

func TestFragmentedMessageEffectiveOpcode(t *testing.T) {
	var wire bytes.Buffer
	writer := NewCodec(EndpointServer)

	if err := writer.WriteMessage(&wire, OpcodeText, []byte("part one "), false, false); err != nil {
		t.Fatalf("write first fragment: %v", err)
	}
	if err := writer.WriteMessage(&wire, OpcodeContinuation, []byte("part two"), true, false); err != nil {
		t.Fatalf("write final fragment: %v", err)
	}

	reader := NewCodec(EndpointServer)

	f1, err := reader.ReadFrame(&wire)
	if err != nil {
		t.Fatalf("read first fragment: %v", err)
	}
	if f1.Fin || f1.EffectiveOpcode != OpcodeText {
		t.Fatalf("expected non-fin text first fragment, got fin=%v opcode=%v", f1.Fin, f1.EffectiveOpcode)
	}

	f2, err := reader.ReadFrame(&wire)
	if err != nil {
		t.Fatalf("read final fragment: %v", err)
	}
	if !f2.Fin || f2.Opcode != OpcodeContinuation || f2.EffectiveOpcode != OpcodeText {
		t.Fatalf("expected fin continuation with effective opcode text, got %+v", f2)
	}
}

func TestMinimalLengthEncodingEnforced(t *testing.T) {
	var wire bytes.Buffer
	// Header claims the 2-byte extended length form for a length that fits
	// in 7 bits (10), which RFC 6455 forbids.
	wire.Write([]byte{0x80 | byte(OpcodeBinary), 0x80 | len16Marker})
	wire.Write([]byte{0x00, 0x0A})
	wire.Write([]byte{0, 0, 0, 0})
	wire.Write(make([]byte, 10))

	codec := NewCodec(EndpointServer)
	if _, err := codec.ReadFrame(&wire); err != ErrNonMinimalLength {
		t.Fatalf("expected ErrNonMinimalLength, got %v", err)
	}
}
