package domain

import (
	"crypto/rand"
	"net"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Peer session constraints.
const (
	MaxNameLength    = 32
	MaxOwnedEntities = 64

	// SessionTokenPrefix is the prefix for session tokens. Values
	// with this prefix are redacted by the logger.
	SessionTokenPrefix = "ms_"
)

// PeerState is the lifecycle state of a peer session. Transitions are
// monotone: Connecting -> Connected -> Disconnected. A reconnecting
// client gets a fresh session with fresh sequence counters, never a
// resurrected one.
type PeerState uint8

const (
	PeerConnecting PeerState = iota
	PeerConnected
	PeerDisconnected
)

// String returns the state name.
func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Peer is one connected participant as the session registry sees it.
type Peer struct {
	ID    PeerID
	Name  string
	Addr  net.Addr
	State PeerState

	// Token is the session token issued at connect time.
	Token string

	// Caps are the capability flags the peer announced in CONNECT.
	Caps uint32

	// Authenticated is set once the peer's identity is accepted.
	Authenticated bool

	ConnectedAt time.Time
	LastSeen    time.Time

	// RTT is the smoothed round-trip estimate from ping echoes.
	RTT time.Duration

	// Owned is the set of entities this peer predicts locally.
	// Bounded by MaxOwnedEntities.
	Owned map[EntityID]struct{}
}

// NewPeer creates a peer session in the Connecting state.
func NewPeer(id PeerID, name string, addr net.Addr, now time.Time) (*Peer, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return nil, ErrNameInvalid.WithDetails(name)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	return &Peer{
		ID:          id,
		Name:        name,
		Addr:        addr,
		State:       PeerConnecting,
		Token:       token,
		ConnectedAt: now,
		LastSeen:    now,
		Owned:       make(map[EntityID]struct{}),
	}, nil
}

// Alive reports whether the peer has been heard from within timeout.
func (p *Peer) Alive(now time.Time, timeout time.Duration) bool {
	return p.State == PeerConnected && now.Sub(p.LastSeen) <= timeout
}

// OwnEntity records ownership of an entity, bounded by
// MaxOwnedEntities.
func (p *Peer) OwnEntity(id EntityID) bool {
	if len(p.Owned) >= MaxOwnedEntities {
		return false
	}
	p.Owned[id] = struct{}{}
	return true
}

// ReleaseEntity drops ownership of an entity.
func (p *Peer) ReleaseEntity(id EntityID) {
	delete(p.Owned, id)
}

// Owns reports whether the peer owns the entity.
func (p *Peer) Owns(id EntityID) bool {
	_, ok := p.Owned[id]
	return ok
}

// GenerateSessionToken generates a session token of the form
// ms_{ulid_lowercase}.
func GenerateSessionToken() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", err
	}
	return SessionTokenPrefix + strings.ToLower(id.String()), nil
}
