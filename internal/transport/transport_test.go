package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (Transport, Transport) {
	t.Helper()
	a, b := net.Pipe()
	return NewPlain(a), NewPlain(b)
}

func TestPlainReadWriteRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, err := server.Read(ctx, buf)
		if err != nil {
			t.Errorf("server Read: %v", err)
			return
		}
		if string(buf[:n]) != "hello" {
			t.Errorf("unexpected payload: %q", buf[:n])
		}
	}()

	if _, err := client.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("client Write: %v", err)
	}
	<-done
}

func TestCancelUnblocksRead(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := server.Read(context.Background(), buf)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	server.Cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected an error from a cancelled read")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Cancel did not unblock the pending Read")
	}
}

func TestContextCancellationAbortsBeforeIO(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Write(ctx, []byte("x")); err == nil {
		t.Fatalf("expected an error writing with an already-cancelled context")
	}
}

func TestPairDialServerPlain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	pair := NewPair(nil)

	if err := pair.DialServer(context.Background(), host, port, false, ClientTLSArgs{}); err != nil {
		t.Fatalf("DialServer: %v", err)
	}
	if !pair.Connected() {
		t.Fatalf("expected pair to report Connected after DialServer")
	}
	<-accepted
	pair.Server.Close()
}
