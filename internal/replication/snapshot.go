package replication

import (
	"sort"
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// snapshotRingSize bounds how far back a baseline may be. A peer whose
// last acknowledged snapshot has fallen out of the ring gets full
// entity states instead of deltas.
const snapshotRingSize = 64

// Builder assembles state snapshots from the entity table and keeps a
// ring of recent ones so per-peer deltas can be computed against the
// snapshot each peer last acknowledged.
type Builder struct {
	mu      sync.Mutex
	table   *Table
	next    uint32
	ring    [snapshotRingSize]*domain.Snapshot
	maxEnts int
	window  time.Duration
}

// NewBuilder creates a snapshot builder over table. maxEntities caps
// entities per snapshot (further clamped to what fits on the wire);
// window is how recently an entity must have changed to be included.
func NewBuilder(table *Table, maxEntities int, window time.Duration) *Builder {
	if lim := wire.MaxSnapshotEntities(wire.MaxPacketSize); maxEntities <= 0 || maxEntities > lim {
		maxEntities = lim
	}
	return &Builder{table: table, next: 1, maxEnts: maxEntities, window: window}
}

// Build captures the current state into a new snapshot. Entities that
// changed most recently come first, so under the cap the hottest
// entities are never the ones dropped. Ring entries hold full state;
// delta compression happens per peer in Encode.
func (b *Builder) Build(now time.Time, peers domain.PeerBitmask) domain.Snapshot {
	changed := b.table.ChangedSince(now.Add(-b.window))
	sort.Slice(changed, func(i, j int) bool {
		if !changed[i].UpdatedAt.Equal(changed[j].UpdatedAt) {
			return changed[i].UpdatedAt.After(changed[j].UpdatedAt)
		}
		return changed[i].ID < changed[j].ID
	})
	if len(changed) > b.maxEnts {
		changed = changed[:b.maxEnts]
	}

	entities := make([]domain.EntityDelta, 0, len(changed))
	for i := range changed {
		entities = append(entities, domain.DeltaFrom(&changed[i], nil))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	snap := domain.Snapshot{
		ID:        b.next,
		Timestamp: now,
		Entities:  entities,
		Peers:     peers,
	}
	b.next++
	stored := snap
	b.ring[snap.ID%snapshotRingSize] = &stored
	return snap
}

// Lookup returns a previously built snapshot if it is still in the
// ring.
func (b *Builder) Lookup(id uint32) (*domain.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.ring[id%snapshotRingSize]
	if s == nil || s.ID != id {
		return nil, false
	}
	return s, true
}

// Deltas re-encodes snap's entries relative to the snapshot a peer
// last acknowledged. If baseline is zero or no longer in the ring,
// every entity is sent in full.
func (b *Builder) Deltas(snap domain.Snapshot, baseline uint32) []domain.EntityDelta {
	var base *domain.Snapshot
	if baseline != 0 && baseline != snap.ID {
		base, _ = b.Lookup(baseline)
	}
	if base == nil {
		return snap.Entities
	}
	out := make([]domain.EntityDelta, 0, len(snap.Entities))
	for i := range snap.Entities {
		d := &snap.Entities[i]
		prev, ok := base.Find(d.ID)
		if !ok {
			out = append(out, *d)
			continue
		}
		e := domain.Entity{
			ID:       d.ID,
			Owner:    d.Owner,
			Type:     d.Type,
			Position: d.Position,
			Rotation: d.Rotation,
			Velocity: d.Velocity,
		}
		out = append(out, domain.DeltaFrom(&e, prev))
	}
	return out
}

// Encode turns snap into its wire form for one peer, delta-compressed
// against the peer's acknowledged baseline.
func (b *Builder) Encode(snap domain.Snapshot, baseline uint32) wire.Snapshot {
	return wire.Snapshot{
		ID:        snap.ID,
		Timestamp: wire.Millis(snap.Timestamp),
		Entities:  b.Deltas(snap, baseline),
		Peers:     snap.Peers,
	}
}
