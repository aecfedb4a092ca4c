package wire

import (
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// Snapshot wire layout per entity entry: change mask, identity, then
// only the pose fields whose mask bit is set.
const (
	snapshotOverhead = 12 + domain.PeerBitmaskBytes // id + timestamp + count + bitmask
	entryFixedSize   = 1 + 8 + 4 + 1                // mask + entity + owner + type
	entryMaxSize     = entryFixedSize + 12 + 16 + 12
)

// MaxSnapshotEntities returns how many full-state entries fit in a
// datagram of maxPayload bytes.
func MaxSnapshotEntities(maxPayload int) int {
	n := (maxPayload - HeaderSize - snapshotOverhead) / entryMaxSize
	if n < 0 {
		return 0
	}
	return n
}

// Snapshot is the wire form of a server snapshot.
type Snapshot struct {
	ID        uint32
	Timestamp uint32
	Entities  []domain.EntityDelta
	Peers     domain.PeerBitmask
}

func (Snapshot) Kind() Kind { return KindSnapshot }

func (s Snapshot) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, s.ID)
	dst = be.AppendUint32(dst, s.Timestamp)
	dst = be.AppendUint32(dst, uint32(len(s.Entities)))
	for i := range s.Entities {
		d := &s.Entities[i]
		dst = append(dst, d.Mask)
		dst = be.AppendUint64(dst, uint64(d.ID))
		dst = be.AppendUint32(dst, uint32(d.Owner))
		dst = append(dst, uint8(d.Type))
		if d.Mask&domain.MaskPosition != 0 {
			dst = appendVec3(dst, d.Position)
		}
		if d.Mask&domain.MaskRotation != 0 {
			dst = appendQuat(dst, d.Rotation)
		}
		if d.Mask&domain.MaskVelocity != 0 {
			dst = appendVec3(dst, d.Velocity)
		}
	}
	return append(dst, s.Peers[:]...)
}

func decodeSnapshot(r *reader) Snapshot {
	s := Snapshot{
		ID:        r.u32(),
		Timestamp: r.u32(),
	}
	count := r.u32()
	if r.err != nil {
		return s
	}
	// A count the remaining bytes cannot possibly hold is a malformed
	// packet, not an allocation request.
	if int(count) > len(r.b)/entryFixedSize {
		r.err = domain.ErrMalformedPacket.WithDetails("entity count out of bounds")
		return s
	}
	s.Entities = make([]domain.EntityDelta, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		d := domain.EntityDelta{
			Mask:  r.u8(),
			ID:    domain.EntityID(r.u64()),
			Owner: domain.PeerID(r.u32()),
			Type:  domain.EntityType(r.u8()),
		}
		if d.Mask&domain.MaskPosition != 0 {
			d.Position = r.vec3()
		}
		if d.Mask&domain.MaskRotation != 0 {
			d.Rotation = r.quat()
		}
		if d.Mask&domain.MaskVelocity != 0 {
			d.Velocity = r.vec3()
		}
		s.Entities = append(s.Entities, d)
	}
	copy(s.Peers[:], r.take(domain.PeerBitmaskBytes))
	return s
}

// Millis truncates a time to the protocol's u32 millisecond clock.
func Millis(t time.Time) uint32 {
	return uint32(t.UnixMilli())
}

// SinceMillis returns the elapsed time between a received u32
// millisecond stamp and now, tolerating clock wrap.
func SinceMillis(stamp uint32, now time.Time) time.Duration {
	return time.Duration(uint32(now.UnixMilli())-stamp) * time.Millisecond
}
