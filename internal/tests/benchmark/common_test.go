package benchmark

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// EntityCounts are the world sizes the snapshot benchmarks sweep.
var EntityCounts = []int{16, 64, 256, 1024}

// PeerCounts are the session counts the registry benchmarks sweep.
var PeerCounts = []int{16, 64, 256}

var benchStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func makeEntity(i int) domain.Entity {
	return domain.Entity{
		ID:        domain.EntityID(i + 1),
		Owner:     domain.ServerPeer,
		Type:      domain.EntityObject,
		Position:  vmath.Vec3{X: float32(i), Y: 1, Z: float32(-i)},
		Rotation:  vmath.Quat{W: 1},
		Velocity:  vmath.Vec3{X: 0.5},
		UpdatedAt: benchStart,
	}
}

func makeDelta(i int) domain.EntityDelta {
	return domain.EntityDelta{
		Mask:     domain.MaskAll,
		ID:       domain.EntityID(i + 1),
		Owner:    domain.ServerPeer,
		Type:     domain.EntityObject,
		Position: vmath.Vec3{X: float32(i), Y: 1, Z: float32(-i)},
		Rotation: vmath.Quat{W: 1},
		Velocity: vmath.Vec3{X: 0.5},
	}
}

func peerBitmask(count int) domain.PeerBitmask {
	var mask domain.PeerBitmask
	for i := 1; i <= count; i++ {
		mask.Set(domain.PeerID(i))
	}
	return mask
}

func peerAddr(i int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, byte(i/250), byte(i%250+1)), Port: 40000 + i}
}

func runCounts(b *testing.B, counts []int, fn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("n_%d", count), func(b *testing.B) {
			fn(b, count)
		})
	}
}
