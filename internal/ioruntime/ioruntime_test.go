package ioruntime

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aetherproxy/aetherproxy/internal/flow"
	"github.com/aetherproxy/aetherproxy/internal/intercept"
)

func TestPoolRoundRobinsAcrossWorkers(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]int{}

	pool := NewPool(3, func(ctx context.Context, w Work) {
		mu.Lock()
		seen[w.Worker]++
		mu.Unlock()
		w.Conn.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 6; i++ {
		a, b := net.Pipe()
		b.Close()
		pool.Submit(a)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	pool.Wait()

	if len(seen) != 3 {
		t.Fatalf("got %d distinct workers used, want 3", len(seen))
	}
	for w, n := range seen {
		if n != 2 {
			t.Fatalf("worker %d handled %d items, want 2", w, n)
		}
	}
}

func TestRegistryRegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()
	f := flow.New(1, "127.0.0.1:1234", nil, intercept.NewDispatcher(), nil, flow.Options{}, nil)

	id := r.Register(f)
	if r.Len() != 1 {
		t.Fatalf("got Len()=%d, want 1", r.Len())
	}

	got, ok := r.Lookup(id)
	if !ok || got != f {
		t.Fatalf("Lookup did not return the registered flow")
	}

	if _, ok := r.Lookup(uuid.New()); ok {
		t.Fatal("Lookup of an unregistered id should miss")
	}

	r.Unregister(id)
	if r.Len() != 0 {
		t.Fatalf("got Len()=%d after Unregister, want 0", r.Len())
	}
}

// TestRuntimeAcceptsAndRunsAPlainFlow drives a real loopback listener
// end-to-end: a client dials in and disconnects, and the runtime's handle()
// must build a Flow, register it, run it to completion, and shut down
// cleanly once ctx is cancelled.
func TestRuntimeAcceptsAndRunsAPlainFlow(t *testing.T) {
	dispatcher := intercept.NewDispatcher()

	rt, err := New("127.0.0.1:0", 2, 0, 0, dispatcher, nil, flow.Options{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // let Run start the acceptor goroutine

	conn, err := net.DialTimeout("tcp", rt.Acceptor.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	conn.Close() // the accepted conn's first Peek will fail; that's enough to exercise handle()

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not shut down after cancel")
	}
}

func TestPauseUnpauseGateSignalDrain(t *testing.T) {
	rt := &Runtime{}
	if rt.paused.Load() {
		t.Fatal("expected a fresh Runtime to start unpaused")
	}
	rt.Pause()
	if !rt.paused.Load() {
		t.Fatal("expected Pause to set paused")
	}
	rt.Unpause()
	if rt.paused.Load() {
		t.Fatal("expected Unpause to clear paused")
	}
}
