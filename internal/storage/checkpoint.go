package storage

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// Checkpoint is a periodic dump of the server's entity table. On
// restart the latest checkpoint seeds the world so server-owned
// entities do not vanish.
type Checkpoint struct {
	ID       uint64      `json:"id"`
	SavedAt  time.Time   `json:"saved_at"`
	Entities []EntityRec `json:"entities"`
}

// EntityRec is one entity in a checkpoint.
type EntityRec struct {
	ID       uint64     `json:"id"`
	Owner    uint32     `json:"owner"`
	Type     uint8      `json:"type"`
	Flags    uint32     `json:"flags"`
	Position vmath.Vec3 `json:"position"`
	Rotation vmath.Quat `json:"rotation"`
	Velocity vmath.Vec3 `json:"velocity"`
}

// RecordOf converts an entity to its checkpoint form. Client-owned
// entities are handed back to the server: their owner's session will
// not exist after a restart.
func RecordOf(e domain.Entity) EntityRec {
	return EntityRec{
		ID:       uint64(e.ID),
		Owner:    uint32(domain.ServerPeer),
		Type:     uint8(e.Type),
		Flags:    e.Flags,
		Position: e.Position,
		Rotation: e.Rotation,
		Velocity: e.Velocity,
	}
}

// Entity converts a checkpoint record back to a live entity.
func (r EntityRec) Entity(at time.Time) domain.Entity {
	return domain.Entity{
		ID:        domain.EntityID(r.ID),
		Owner:     domain.PeerID(r.Owner),
		Type:      domain.EntityType(r.Type),
		Flags:     r.Flags,
		Position:  r.Position,
		Rotation:  r.Rotation,
		Velocity:  r.Velocity,
		UpdatedAt: at,
	}
}

// SaveCheckpoint persists a checkpoint under its id.
func (s *Store) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := marshalJSON(cp)
	if err != nil {
		return err
	}
	return s.set(checkpointKey(cp.ID), b)
}

// LoadCheckpoint fetches a checkpoint by id.
func (s *Store) LoadCheckpoint(ctx context.Context, id uint64) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	b, err := s.get(checkpointKey(id))
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := unmarshalJSON(b, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// LatestCheckpoint returns the checkpoint with the highest id, or
// ErrNotFound when none has been saved yet. Keys are big-endian ids,
// so a reverse scan finds it without reading the rest.
func (s *Store) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixCheckpoint
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last possible key under the
		// prefix.
		seek := checkpointKey(^uint64(0))
		it.Seek(seek)
		if !it.Valid() {
			return ErrNotFound
		}
		var err error
		raw, err = it.Item().ValueCopy(nil)
		return err
	})
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := unmarshalJSON(raw, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// PruneCheckpoints deletes all but the newest keep checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ids []uint64
	err := s.scan(prefixCheckpoint, func(key, _ []byte) bool {
		if len(key) == len(prefixCheckpoint)+8 {
			ids = append(ids, binary.BigEndian.Uint64(key[len(prefixCheckpoint):]))
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(ids) <= keep {
		return nil
	}
	// Prefix scans iterate in key order, so ids is already ascending.
	drop := ids[:len(ids)-keep]
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range drop {
			if err := txn.Delete(checkpointKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}
