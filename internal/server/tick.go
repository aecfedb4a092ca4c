package server

import (
	"context"
	"time"

	"github.com/unknownsaying/meshsync/internal/storage"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// Tick advances the simulation clock by one step: retransmit overdue
// reliable packets, broadcast delta snapshots on the snapshot cadence,
// and run per-second upkeep. Run calls it on the tick timer; tests
// call it directly with a synthetic clock.
func (s *Server) Tick(now time.Time) {
	start := time.Now()
	s.tickCount++

	s.retransmit(now)

	if s.tickCount%uint64(s.cfg.Protocol.SnapshotInterval) == 0 {
		s.broadcastSnapshot(now)
	}
	if s.tickCount%uint64(s.cfg.Protocol.TickRate) == 0 {
		s.upkeep(now)
	}
	if s.store != nil && now.Sub(s.lastCheckpoint) >= s.cfg.Storage.CheckpointInterval {
		s.lastCheckpoint = now
		s.saveCheckpoint(now)
	}

	s.metrics.EntitiesTracked.Set(float64(s.table.Len()))
	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// retransmit resends every overdue reliable packet and drops peers the
// retry budget has given up on.
func (s *Server) retransmit(now time.Time) {
	for _, l := range s.allLinks() {
		due, err := l.rq.Due(now, s.cfg.Reliability.RetryTimeout)
		for _, rt := range due {
			s.ep.Send(l.addr, rt.Payload)
			s.metrics.Retransmits.Inc()
			s.metrics.BytesSent.Add(float64(len(rt.Payload)))
		}
		if err != nil {
			s.metrics.PeersUnreachable.Inc()
			s.log.Warn("peer unreachable", "peer", l.peer, "outstanding", l.rq.Outstanding())
			s.dropPeer(l, "unreachable", now)
		}
	}
}

// broadcastSnapshot builds one authoritative snapshot and encodes it
// per link against whatever baseline that link has acknowledged.
func (s *Server) broadcastSnapshot(now time.Time) {
	links := s.allLinks()
	if len(links) == 0 {
		return
	}
	snap := s.builder.Build(now, s.registry.Bitmask())
	s.metrics.SnapshotsBuilt.Inc()
	s.metrics.SnapshotEntities.Observe(float64(len(snap.Entities)))

	for _, l := range links {
		enc := s.builder.Encode(snap, l.snapshotBaseline())
		s.sendSnapshot(l, enc, snap.ID, now)
	}
}

// upkeep runs once per second: keepalives to quiet links, stale peer
// eviction, and the observed loss rate gauge.
func (s *Server) upkeep(now time.Time) {
	var loss float64
	links := s.allLinks()
	for _, l := range links {
		if now.Sub(l.lastSent) >= s.cfg.Reliability.KeepaliveInterval {
			s.send(l, wire.Ping{Timestamp: wire.Millis(now)}, now)
		}
		loss += l.lossRate()
	}
	if n := len(links); n > 0 {
		s.metrics.PacketLossRate.Set(loss / float64(n))
	}

	for _, peer := range s.registry.EvictStale(s.cfg.Reliability.EffectivePeerTimeout()) {
		if l, ok := s.linkFor(peer.Addr); ok {
			s.removeLink(l.addr)
		}
		s.chat.Forget(peer.ID, now)
		s.voice.Forget(peer.ID)
		released := s.table.ReleaseOwner(peer.ID)
		s.metrics.PeersEvicted.Inc()
		s.log.Info("peer evicted",
			"peer", peer.ID,
			"name", peer.Name,
			"last_seen", peer.LastSeen,
			"entities_released", len(released))
		s.broadcast(wire.Disconnect{Peer: uint32(peer.ID), Reason: "timed out"}, peer.ID, now)
	}
	s.metrics.PeersConnected.Set(float64(s.registry.Count()))
}

// saveCheckpoint persists the world state. Client-owned entities are
// written with server ownership so a restart never resurrects a
// session that no longer exists.
func (s *Server) saveCheckpoint(now time.Time) {
	entities := s.table.All()
	recs := make([]storage.EntityRec, 0, len(entities))
	for _, e := range entities {
		recs = append(recs, storage.RecordOf(e))
	}
	cp := storage.Checkpoint{
		ID:       s.nextCheckpoint.Add(1),
		SavedAt:  now,
		Entities: recs,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
		s.log.Error("checkpoint failed", "checkpoint", cp.ID, "error", err)
		return
	}
	if err := s.store.PruneCheckpoints(ctx, s.cfg.Storage.CheckpointKeep); err != nil {
		s.log.Warn("checkpoint prune failed", "error", err)
	}
	s.log.Info("checkpoint saved", "checkpoint", cp.ID, "entities", len(recs))
}
