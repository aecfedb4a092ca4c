package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/unknownsaying/meshsync/internal/storage"
	"github.com/unknownsaying/meshsync/pkg/token"
)

func openBenchStore(b *testing.B, encrypted bool) *storage.Store {
	b.Helper()
	cfg := storage.Config{Dir: b.TempDir()}
	if encrypted {
		cfg.EncryptionKey = make([]byte, 32)
		if _, err := rand.Read(cfg.EncryptionKey); err != nil {
			b.Fatal(err)
		}
	}
	s, err := storage.Open(cfg, nil, nil)
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

func benchCheckpoint(id uint64, entities int) storage.Checkpoint {
	cp := storage.Checkpoint{ID: id, SavedAt: benchStart}
	for i := 0; i < entities; i++ {
		cp.Entities = append(cp.Entities, storage.RecordOf(makeEntity(i)))
	}
	return cp
}

func BenchmarkSaveCheckpoint(b *testing.B) {
	for _, encrypted := range []bool{false, true} {
		name := "plain"
		if encrypted {
			name = "encrypted"
		}
		b.Run(name, func(b *testing.B) {
			runCounts(b, []int{64, 256, 1024}, func(b *testing.B, count int) {
				s := openBenchStore(b, encrypted)
				ctx := context.Background()
				cp := benchCheckpoint(1, count)

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					cp.ID = uint64(i + 1)
					if err := s.SaveCheckpoint(ctx, cp); err != nil {
						b.Fatal(err)
					}
				}
			})
		})
	}
}

func BenchmarkLatestCheckpoint(b *testing.B) {
	s := openBenchStore(b, false)
	ctx := context.Background()
	for id := uint64(1); id <= 8; id++ {
		if err := s.SaveCheckpoint(ctx, benchCheckpoint(id, 256)); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cp, err := s.LatestCheckpoint(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if cp.ID != 8 {
			b.Fatalf("latest = %d, want 8", cp.ID)
		}
	}
}

func BenchmarkTouchProfile(b *testing.B) {
	s := openBenchStore(b, false)
	ctx := context.Background()
	hash := token.Hash("ms_bench")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		name := fmt.Sprintf("peer-%d", i%100)
		if _, err := s.TouchProfile(ctx, name, hash, benchStart); err != nil {
			b.Fatal(err)
		}
	}
}
