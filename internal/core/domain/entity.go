package domain

import (
	"time"

	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// EntityID uniquely identifies a replicated entity.
type EntityID uint64

// PeerID identifies a connected peer. ServerPeer (0) is reserved for
// the server itself and marks server-owned entities.
type PeerID uint32

// ServerPeer is the peer id of the authoritative server.
const ServerPeer PeerID = 0

// EntityType tags the kind of entity for the consuming engine.
type EntityType uint8

// Entity type tags. The replication engine treats these as opaque;
// they exist so the presentation layer can pick a representation.
const (
	EntityAvatar EntityType = iota
	EntityObject
	EntityProjectile
	EntityMarker
)

// String returns the type name.
func (t EntityType) String() string {
	switch t {
	case EntityAvatar:
		return "avatar"
	case EntityObject:
		return "object"
	case EntityProjectile:
		return "projectile"
	case EntityMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// Entity behavior flags.
const (
	FlagHasVelocity uint32 = 1 << iota
	FlagHasGravity
	FlagStatic
	FlagHidden
)

// Entity is one replicated object in the shared world.
//
// The server's copy is authoritative. A client copy is either a
// remote view (non-owned, interpolated) or a local prediction
// (owned, reconciled against snapshots).
type Entity struct {
	ID    EntityID
	Owner PeerID
	Type  EntityType
	Flags uint32

	Position vmath.Vec3
	Rotation vmath.Quat
	Velocity vmath.Vec3

	// UpdatedAt is the time of the last accepted state change.
	UpdatedAt time.Time

	// InterpWindow is the blend duration clients use for this entity.
	// Zero means the configured default.
	InterpWindow time.Duration
}

// HasVelocity reports whether the entity carries a velocity vector.
func (e *Entity) HasVelocity() bool { return e.Flags&FlagHasVelocity != 0 }

// ServerOwned reports whether the server is the entity's owner.
func (e *Entity) ServerOwned() bool { return e.Owner == ServerPeer }

// Pose is a position/rotation pair, the unit of interpolation and
// reconciliation.
type Pose struct {
	Position vmath.Vec3
	Rotation vmath.Quat
}

// Pose returns the entity's current pose.
func (e *Entity) Pose() Pose {
	return Pose{Position: e.Position, Rotation: e.Rotation}
}
