package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// DefaultMaxPeers bounds the registry when no limit is configured.
const DefaultMaxPeers = 256

// rttDecay smooths round-trip samples: 7/8 history, 1/8 newest.
const rttDecay = 8

// Registry owns the peer table. All methods are safe for concurrent
// use; reads take the shared lock, mutations the exclusive one.
type Registry struct {
	mu       sync.RWMutex
	peers    map[domain.PeerID]*domain.Peer
	byAddr   map[string]domain.PeerID
	nextID   domain.PeerID
	maxPeers int
}

// NewRegistry creates an empty registry holding at most maxPeers
// peers; maxPeers <= 0 uses DefaultMaxPeers.
func NewRegistry(maxPeers int) *Registry {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &Registry{
		peers:    make(map[domain.PeerID]*domain.Peer),
		byAddr:   make(map[string]domain.PeerID),
		nextID:   domain.ServerPeer + 1,
		maxPeers: maxPeers,
	}
}

// Connect admits a new peer and returns its record. Peer ids are
// never reused, so a reconnecting client always starts with fresh
// sequence state. An address that is already connected gets its
// existing record back (a retransmitted CONNECT, not a new session).
func (r *Registry) Connect(addr net.Addr, name string, caps uint32) (*domain.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byAddr[addr.String()]; ok {
		if p := r.peers[id]; p.State == domain.PeerConnected {
			return p, nil
		}
	}

	if len(r.peers) >= r.maxPeers {
		return nil, domain.ErrRegistryFull.WithDetails(fmt.Sprintf("%d peers", r.maxPeers))
	}

	now := time.Now()
	p, err := domain.NewPeer(r.nextID, name, addr, now)
	if err != nil {
		return nil, err
	}
	p.Caps = caps
	p.State = domain.PeerConnected
	p.Authenticated = true

	r.nextID++
	if r.nextID == domain.ServerPeer {
		r.nextID++ // id 0 stays the server's forever
	}

	r.peers[p.ID] = p
	r.byAddr[addr.String()] = p.ID
	return p, nil
}

// Disconnect ends a peer's session. The record is removed; the state
// machine never runs backwards.
func (r *Registry) Disconnect(id domain.PeerID) (*domain.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound.WithDetails(fmt.Sprintf("peer %d", id))
	}
	p.State = domain.PeerDisconnected
	delete(r.peers, id)
	delete(r.byAddr, p.Addr.String())
	return p, nil
}

// Touch records activity from a peer, refreshing its liveness.
func (r *Registry) Touch(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return false
	}
	p.LastSeen = time.Now()
	return true
}

// ObserveRTT folds a round-trip sample into the peer's smoothed
// estimate.
func (r *Registry) ObserveRTT(id domain.PeerID, sample time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return
	}
	if p.RTT == 0 {
		p.RTT = sample
		return
	}
	p.RTT = p.RTT - p.RTT/rttDecay + sample/rttDecay
}

// Alive reports whether the peer has been heard from within timeout.
func (r *Registry) Alive(id domain.PeerID, timeout time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return ok && p.Alive(time.Now(), timeout)
}

// Get returns a copy of the peer record.
func (r *Registry) Get(id domain.PeerID) (domain.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.Peer{}, false
	}
	return *p, true
}

// Lookup resolves a network address to a peer id.
func (r *Registry) Lookup(addr net.Addr) (domain.PeerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[addr.String()]
	return id, ok
}

// OwnEntity records that a peer predicts an entity locally.
func (r *Registry) OwnEntity(id domain.PeerID, entity domain.EntityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound.WithDetails(fmt.Sprintf("peer %d", id))
	}
	if !p.OwnEntity(entity) {
		return domain.ErrNotOwner.WithDetails("ownership table full")
	}
	return nil
}

// ReleaseEntity drops a peer's ownership of an entity. Unknown peers
// and entities are a no-op.
func (r *Registry) ReleaseEntity(id domain.PeerID, entity domain.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.ReleaseEntity(entity)
	}
}

// Owns reports whether the peer owns the entity.
func (r *Registry) Owns(id domain.PeerID, entity domain.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return ok && p.Owns(entity)
}

// Peers returns copies of every connected peer record.
func (r *Registry) Peers() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of connected peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Bitmask returns the connected-peer bitmask snapshots carry.
func (r *Registry) Bitmask() domain.PeerBitmask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b domain.PeerBitmask
	for id := range r.peers {
		b.Set(id)
	}
	return b
}

// EvictStale removes every peer not heard from within timeout and
// returns the evicted records, each with its owned-entity set intact
// so the caller can release those entities to server ownership.
func (r *Registry) EvictStale(timeout time.Duration) []domain.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var evicted []domain.Peer
	for id, p := range r.peers {
		if p.Alive(now, timeout) {
			continue
		}
		p.State = domain.PeerDisconnected
		evicted = append(evicted, *p)
		delete(r.peers, id)
		delete(r.byAddr, p.Addr.String())
	}
	return evicted
}
