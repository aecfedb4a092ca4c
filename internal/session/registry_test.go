package session

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

func addr(port int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestConnectAssignsIDs(t *testing.T) {
	r := NewRegistry(8)

	a, err := r.Connect(addr(1000), "alice", 0)
	if err != nil {
		t.Fatalf("Connect(alice) error = %v", err)
	}
	b, err := r.Connect(addr(1001), "bob", 0)
	if err != nil {
		t.Fatalf("Connect(bob) error = %v", err)
	}

	if a.ID == domain.ServerPeer || b.ID == domain.ServerPeer {
		t.Error("client ids must never be the server id")
	}
	if a.ID == b.ID {
		t.Error("peer ids must be unique")
	}
	if a.State != domain.PeerConnected {
		t.Errorf("State = %v, want connected", a.State)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestConnectSameAddrIsIdempotent(t *testing.T) {
	r := NewRegistry(8)
	a, _ := r.Connect(addr(1000), "alice", 0)
	again, err := r.Connect(addr(1000), "alice", 0)
	if err != nil {
		t.Fatalf("Connect(repeat) error = %v", err)
	}
	if again.ID != a.ID {
		t.Errorf("repeated CONNECT created a new session: %d != %d", again.ID, a.ID)
	}
}

func TestConnectCapacity(t *testing.T) {
	r := NewRegistry(2)
	r.Connect(addr(1), "a", 0)
	r.Connect(addr(2), "b", 0)

	if _, err := r.Connect(addr(3), "c", 0); !errors.Is(err, domain.ErrRegistryFull) {
		t.Errorf("Connect(overflow) error = %v, want ErrRegistryFull", err)
	}
}

func TestIDsNeverReused(t *testing.T) {
	r := NewRegistry(4)
	a, _ := r.Connect(addr(1), "a", 0)
	r.Disconnect(a.ID)

	b, _ := r.Connect(addr(1), "a", 0)
	if b.ID == a.ID {
		t.Error("a reconnect must get a fresh id, never a stale session")
	}
}

func TestDisconnectUnknown(t *testing.T) {
	r := NewRegistry(4)
	if _, err := r.Disconnect(42); !errors.Is(err, domain.ErrPeerNotFound) {
		t.Errorf("Disconnect(unknown) error = %v, want ErrPeerNotFound", err)
	}
}

func TestTouchAndAlive(t *testing.T) {
	r := NewRegistry(4)
	p, _ := r.Connect(addr(1), "a", 0)

	if !r.Alive(p.ID, time.Second) {
		t.Error("freshly connected peer should be alive")
	}
	if !r.Touch(p.ID) {
		t.Error("Touch(known) = false")
	}
	if r.Touch(99) {
		t.Error("Touch(unknown) = true")
	}
}

func TestObserveRTTSmooths(t *testing.T) {
	r := NewRegistry(4)
	p, _ := r.Connect(addr(1), "a", 0)

	r.ObserveRTT(p.ID, 100*time.Millisecond)
	got, _ := r.Get(p.ID)
	if got.RTT != 100*time.Millisecond {
		t.Fatalf("first sample RTT = %v, want 100ms", got.RTT)
	}

	r.ObserveRTT(p.ID, 200*time.Millisecond)
	got, _ = r.Get(p.ID)
	if got.RTT <= 100*time.Millisecond || got.RTT >= 200*time.Millisecond {
		t.Errorf("smoothed RTT = %v, want between samples", got.RTT)
	}
}

func TestEvictStaleReleasesOwnership(t *testing.T) {
	r := NewRegistry(4)
	stale, _ := r.Connect(addr(1), "stale", 0)
	fresh, _ := r.Connect(addr(2), "fresh", 0)

	r.OwnEntity(stale.ID, 7)

	// Backdate the stale peer's last activity.
	r.mu.Lock()
	r.peers[stale.ID].LastSeen = time.Now().Add(-time.Minute)
	r.mu.Unlock()

	evicted := r.EvictStale(3 * time.Second)
	if len(evicted) != 1 || evicted[0].ID != stale.ID {
		t.Fatalf("evicted = %v, want just the stale peer", evicted)
	}
	if !evicted[0].Owns(7) {
		t.Error("evicted record should carry its owned entities")
	}
	if evicted[0].State != domain.PeerDisconnected {
		t.Errorf("evicted state = %v, want disconnected", evicted[0].State)
	}
	if _, ok := r.Get(stale.ID); ok {
		t.Error("stale peer should be gone")
	}
	if _, ok := r.Get(fresh.ID); !ok {
		t.Error("fresh peer should remain")
	}
}

func TestBitmaskTracksPeers(t *testing.T) {
	r := NewRegistry(8)
	var ids []domain.PeerID
	for i := 0; i < 3; i++ {
		p, _ := r.Connect(addr(100+i), fmt.Sprintf("p%d", i), 0)
		ids = append(ids, p.ID)
	}
	b := r.Bitmask()
	for _, id := range ids {
		if !b.Has(id) {
			t.Errorf("bitmask missing peer %d", id)
		}
	}
	if b.Count() != 3 {
		t.Errorf("bitmask Count() = %d, want 3", b.Count())
	}
}
