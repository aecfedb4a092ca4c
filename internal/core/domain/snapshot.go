package domain

import (
	"time"

	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// Change mask bits for snapshot entity deltas. A set bit means the
// corresponding field is present on the wire.
const (
	MaskPosition uint8 = 1 << iota
	MaskRotation
	MaskVelocity

	MaskAll = MaskPosition | MaskRotation | MaskVelocity
)

// PeerBitmaskBytes is the fixed size of the connected-peer bitmask
// carried by every snapshot (one bit per low peer id).
const PeerBitmaskBytes = 32

// PeerBitmask marks connected peers by id, modulo its capacity.
type PeerBitmask [PeerBitmaskBytes]byte

// Set marks a peer as connected.
func (b *PeerBitmask) Set(id PeerID) {
	i := int(id) % (PeerBitmaskBytes * 8)
	b[i/8] |= 1 << (i % 8)
}

// Has reports whether a peer is marked connected.
func (b *PeerBitmask) Has(id PeerID) bool {
	i := int(id) % (PeerBitmaskBytes * 8)
	return b[i/8]&(1<<(i%8)) != 0
}

// Count returns the number of set bits.
func (b *PeerBitmask) Count() int {
	n := 0
	for _, by := range b {
		for ; by != 0; by &= by - 1 {
			n++
		}
	}
	return n
}

// EntityDelta is one entity's entry in a snapshot. Fields whose mask
// bit is clear hold zero values and are absent on the wire.
type EntityDelta struct {
	Mask  uint8
	ID    EntityID
	Owner PeerID
	Type  EntityType

	Position vmath.Vec3
	Rotation vmath.Quat
	Velocity vmath.Vec3
}

// DeltaFrom builds a delta of e against a baseline delta. A nil
// baseline yields a full-state delta with every mask bit set.
func DeltaFrom(e *Entity, baseline *EntityDelta) EntityDelta {
	d := EntityDelta{
		Mask:     MaskAll,
		ID:       e.ID,
		Owner:    e.Owner,
		Type:     e.Type,
		Position: e.Position,
		Rotation: e.Rotation,
		Velocity: e.Velocity,
	}
	if baseline == nil {
		return d
	}
	if e.Position == baseline.Position {
		d.Mask &^= MaskPosition
		d.Position = vmath.Vec3{}
	}
	if e.Rotation == baseline.Rotation {
		d.Mask &^= MaskRotation
		d.Rotation = vmath.Quat{}
	}
	if e.Velocity == baseline.Velocity {
		d.Mask &^= MaskVelocity
		d.Velocity = vmath.Vec3{}
	}
	return d
}

// Snapshot is a server-authored, bounded batch of entity deltas plus
// the connected-peer bitmask. IDs increase monotonically.
type Snapshot struct {
	ID        uint32
	Timestamp time.Time
	Entities  []EntityDelta
	Peers     PeerBitmask
}

// Find returns the delta for an entity id, if present.
func (s *Snapshot) Find(id EntityID) (*EntityDelta, bool) {
	for i := range s.Entities {
		if s.Entities[i].ID == id {
			return &s.Entities[i], true
		}
	}
	return nil, false
}
