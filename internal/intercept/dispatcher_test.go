package intercept

import "testing"

func TestAttachFiresInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []int

	d.Server.Attach(ServerConnect, func(ServerPayload) { order = append(order, 1) })
	d.Server.Attach(ServerConnect, func(ServerPayload) { order = append(order, 2) })
	d.Server.Attach(ServerConnect, func(ServerPayload) { order = append(order, 3) })

	d.Server.Fire(ServerConnect, ServerPayload{})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected callbacks to fire in attach order, got %v", order)
	}
}

func TestDetachRemovesOnlyThatCallback(t *testing.T) {
	d := NewDispatcher()
	var fired []string

	id1 := d.HTTP.Attach(HTTPRequest, func(HTTPPayload) { fired = append(fired, "a") })
	d.HTTP.Attach(HTTPRequest, func(HTTPPayload) { fired = append(fired, "b") })

	if !d.HTTP.Detach(id1) {
		t.Fatalf("expected Detach to report success for a live id")
	}
	if d.HTTP.Detach(id1) {
		t.Fatalf("expected a second Detach of the same id to report failure")
	}

	d.HTTP.Fire(HTTPRequest, HTTPPayload{})

	if len(fired) != 1 || fired[0] != "b" {
		t.Fatalf("expected only the surviving callback to fire, got %v", fired)
	}
}

func TestZeroIDNeverAttached(t *testing.T) {
	d := NewDispatcher()
	if d.Tunnel.Detach(0) {
		t.Fatalf("id 0 must never be considered attached")
	}
}

type testCertHub struct {
	BaseCertHub
	searched bool
}

func (h *testCertHub) OnCertSearch(CertPayload) { h.searched = true }

func TestWireHubAttachesOnlyImplementedMethods(t *testing.T) {
	d := NewDispatcher()
	hub := &testCertHub{}

	ids := d.WireHub(hub)
	if len(ids) != 2 {
		t.Fatalf("expected both OnCertSearch and the embedded no-op OnCertCreate to be wired, got %d ids", len(ids))
	}

	d.Certificate.Fire(CertSearch, CertPayload{})
	if !hub.searched {
		t.Fatalf("expected wired OnCertSearch to have fired")
	}
}

type minimalTunnelHub struct{}

func (minimalTunnelHub) OnTunnelStart(TunnelPayload) {}

func TestWireHubSkipsUnimplementedFamilies(t *testing.T) {
	d := NewDispatcher()
	ids := d.WireHub(minimalTunnelHub{})
	if len(ids) != 1 {
		t.Fatalf("expected exactly one wired method for a hub implementing only OnTunnelStart, got %d", len(ids))
	}
	if d.Server.Len(ServerConnect) != 0 {
		t.Fatalf("expected no server.* callbacks wired for a hub that implements none")
	}
}
