package replication

import (
	"fmt"
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// Table is the entity table. On the server it holds ground truth; on
// a client it holds the latest accepted state received in snapshots.
type Table struct {
	mu       sync.RWMutex
	entities map[domain.EntityID]*domain.Entity
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entities: make(map[domain.EntityID]*domain.Entity)}
}

// Upsert stores a full entity state.
func (t *Table) Upsert(e domain.Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := e
	t.entities[e.ID] = &stored
}

// Apply merges a snapshot delta into the table. Fields missing from
// the delta keep their current values; an unknown entity is created
// from whatever the delta carries.
func (t *Table) Apply(d domain.EntityDelta, at time.Time) domain.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entities[d.ID]
	if !ok {
		e = &domain.Entity{ID: d.ID}
		t.entities[d.ID] = e
	}
	e.Owner = d.Owner
	e.Type = d.Type
	if d.Mask&domain.MaskPosition != 0 {
		e.Position = d.Position
	}
	if d.Mask&domain.MaskRotation != 0 {
		e.Rotation = d.Rotation
	}
	if d.Mask&domain.MaskVelocity != 0 {
		e.Velocity = d.Velocity
	}
	e.UpdatedAt = at
	return *e
}

// Remove deletes an entity.
func (t *Table) Remove(id domain.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entities[id]; !ok {
		return false
	}
	delete(t.entities, id)
	return true
}

// Get returns a copy of an entity.
func (t *Table) Get(id domain.EntityID) (domain.Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entities[id]
	if !ok {
		return domain.Entity{}, false
	}
	return *e, true
}

// Len returns the number of entities.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entities)
}

// All returns copies of every entity.
func (t *Table) All() []domain.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, *e)
	}
	return out
}

// ChangedSince returns copies of entities updated at or after cutoff.
func (t *Table) ChangedSince(cutoff time.Time) []domain.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Entity
	for _, e := range t.entities {
		if !e.UpdatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out
}

// ReleaseOwner hands every entity owned by peer back to the server
// and returns the affected entity ids. Called when a peer leaves.
func (t *Table) ReleaseOwner(owner domain.PeerID) []domain.EntityID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var released []domain.EntityID
	for id, e := range t.entities {
		if e.Owner == owner {
			e.Owner = domain.ServerPeer
			released = append(released, id)
		}
	}
	return released
}

// InputSample is one tick of input as the engine consumes it.
type InputSample struct {
	Seq     uint32
	Buttons uint32
	Move    vmath.Vec3
}

// ApplyInput advances an entity on the server from validated client
// input. The move axis is clamped to unit length before scaling by
// maxSpeed, so a doctored client cannot move faster than anyone else.
// The caller is responsible for checking ownership first.
func (t *Table) ApplyInput(id domain.EntityID, owner domain.PeerID, in InputSample, dt time.Duration, maxSpeed float32, now time.Time) (domain.Entity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entities[id]
	if !ok {
		return domain.Entity{}, domain.ErrEntityNotFound.WithDetails(fmt.Sprintf("entity %d", id))
	}
	if e.Owner != owner {
		return domain.Entity{}, domain.ErrNotOwner.WithDetails(
			fmt.Sprintf("entity %d owned by %d, input from %d", id, e.Owner, owner))
	}

	advance(e, in, dt, maxSpeed)
	e.UpdatedAt = now
	return *e, nil
}

// advance is the shared movement model used by the server's
// authoritative step and the client's prediction, so that an honest
// client's prediction matches the server exactly.
// Advance applies one input to a copy of e using the shared movement
// model and returns the result. Callers that replay buffered inputs
// against an authoritative state use this to stay bit-identical with
// the server's own integration.
func Advance(e domain.Entity, in InputSample, dt time.Duration, maxSpeed float32) domain.Entity {
	advance(&e, in, dt, maxSpeed)
	return e
}

func advance(e *domain.Entity, in InputSample, dt time.Duration, maxSpeed float32) {
	move := in.Move
	if l := move.Length(); l > 1 {
		move = move.Scale(1 / l)
	}
	e.Velocity = move.Scale(maxSpeed)
	e.Flags |= domain.FlagHasVelocity
	e.Position = e.Position.Add(e.Velocity.Scale(float32(dt.Seconds())))
}
