package benchmark

import (
	"testing"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

func benchUpdate() wire.EntityUpdate {
	return wire.EntityUpdate{
		Entity:    42,
		Owner:     7,
		Type:      uint8(domain.EntityAvatar),
		Position:  vmath.Vec3{X: 1.5, Y: 0, Z: -3.25},
		Rotation:  vmath.Quat{W: 1},
		Velocity:  vmath.Vec3{X: 0.5},
		Timestamp: 123456,
	}
}

func BenchmarkEncodeEntityUpdate(b *testing.B) {
	p := benchUpdate()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := wire.Encode(uint16(i), p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeEntityUpdate(b *testing.B) {
	buf, err := wire.Encode(1, benchUpdate())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := wire.Decode(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeSnapshot(b *testing.B) {
	runCounts(b, []int{4, 12, 24}, func(b *testing.B, count int) {
		snap := wire.Snapshot{ID: 9, Timestamp: 123456}
		for i := 0; i < count; i++ {
			snap.Entities = append(snap.Entities, makeDelta(i))
		}
		snap.Peers.Set(1)
		snap.Peers.Set(2)

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := wire.Encode(uint16(i), snap); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkDecodeSnapshot(b *testing.B) {
	runCounts(b, []int{4, 12, 24}, func(b *testing.B, count int) {
		snap := wire.Snapshot{ID: 9, Timestamp: 123456}
		for i := 0; i < count; i++ {
			snap.Entities = append(snap.Entities, makeDelta(i))
		}
		buf, err := wire.Encode(1, snap)
		if err != nil {
			b.Fatal(err)
		}

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, _, err := wire.Decode(buf); err != nil {
				b.Fatal(err)
			}
		}
	})
}
