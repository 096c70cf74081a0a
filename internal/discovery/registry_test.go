package discovery

import "testing"

func TestEndpointEqual(t *testing.T) {
	a := Endpoint{HostName: "alice", IP: "10.0.0.5", HandshakePort: 9000}
	b := Endpoint{HostName: "renamed-alice", IP: "10.0.0.5", HandshakePort: 9000, LivenessTTL: 3}
	if !a.Equal(b) {
		t.Fatal("endpoints with matching (ip, handshake_port) must be equal regardless of name/ttl")
	}

	c := Endpoint{HostName: "alice", IP: "10.0.0.5", HandshakePort: 9001}
	if a.Equal(c) {
		t.Fatal("endpoints with differing handshake_port must not be equal")
	}
}

func TestRegistrySelfAtIndexZero(t *testing.T) {
	r := New(7000, 7001, 7002)
	if r.NumHosts() != 1 {
		t.Fatalf("NumHosts() = %d, want 1 (self only)", r.NumHosts())
	}
	self, ok := r.Info(0)
	if !ok {
		t.Fatal("Info(0) must return self")
	}
	if self.HandshakePort != 7002 || self.StreamRequestPort != 7000 || self.ControlPort != 7001 {
		t.Fatalf("unexpected self endpoint: %+v", self)
	}
}

func TestRegistryUpsertAndIndex(t *testing.T) {
	r := New(7000, 7001, 7002)

	peer := Endpoint{HostName: "bob", IP: "10.0.0.9", HandshakePort: 7002, StreamRequestPort: 6000, ControlPort: 6001}
	r.upsertPeer(peer)

	if r.NumHosts() != 2 {
		t.Fatalf("NumHosts() = %d, want 2", r.NumHosts())
	}
	if idx := r.IndexOfName("bob"); idx != 1 {
		t.Fatalf("IndexOfName(bob) = %d, want 1", idx)
	}
	if idx := r.IndexOfEndpoint(Endpoint{IP: "10.0.0.9", HandshakePort: 7002}); idx != 1 {
		t.Fatalf("IndexOfEndpoint = %d, want 1", idx)
	}
	if idx := r.IndexOfName("nobody"); idx != -1 {
		t.Fatalf("IndexOfName(nobody) = %d, want -1", idx)
	}

	// Re-upserting the same (ip, handshake_port) refreshes in place rather
	// than growing the peer list.
	peer.HostName = "bob-renamed"
	r.upsertPeer(peer)
	if r.NumHosts() != 2 {
		t.Fatalf("NumHosts() after re-upsert = %d, want 2", r.NumHosts())
	}
	got, _ := r.Info(1)
	if got.HostName != "bob-renamed" {
		t.Fatalf("upsert did not refresh host name: %+v", got)
	}
}

func TestRegistrySweepTTLEvictsExpired(t *testing.T) {
	r := New(7000, 7001, 7002)
	r.upsertPeer(Endpoint{HostName: "expiring", IP: "10.0.0.9", HandshakePort: 7002})

	for i := 0; i < initialTTL; i++ {
		r.sweepTTL()
	}

	if r.NumHosts() != 1 {
		t.Fatalf("NumHosts() = %d after TTL expiry, want 1 (self only)", r.NumHosts())
	}
	if idx := r.IndexOfName("expiring"); idx != -1 {
		t.Fatalf("expired peer should be evicted, IndexOfName = %d", idx)
	}
}

func TestRegistryInfoOutOfRange(t *testing.T) {
	r := New(7000, 7001, 7002)
	if _, ok := r.Info(5); ok {
		t.Fatal("Info with out-of-range index must return ok=false")
	}
	if _, ok := r.Info(-1); ok {
		t.Fatal("Info with negative index must return ok=false")
	}
}
