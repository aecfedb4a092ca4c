package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/replication"
	"github.com/unknownsaying/meshsync/internal/sequence"
	"github.com/unknownsaying/meshsync/internal/wire"
	"github.com/unknownsaying/meshsync/pkg/token"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// handleDatagram decodes one datagram and dispatches it. Bad packets
// are dropped and counted; the sender is never told, a malformed
// source gets no oracle.
func (s *Server) handleDatagram(b []byte, addr net.Addr, now time.Time) {
	h, p, err := wire.Decode(b)
	if err != nil {
		if errors.Is(err, domain.ErrVersionMismatch) {
			s.metrics.VersionMismatches.Inc()
		} else {
			s.metrics.PacketsMalformed.Inc()
		}
		s.log.Debug("dropped datagram", "from", addr.String(), "error", err)
		return
	}
	s.metrics.PacketsReceived.WithLabelValues(h.Kind.String()).Inc()

	// Connect is the only kind accepted from an unknown address.
	l, known := s.linkFor(addr)
	if !known {
		if c, ok := p.(wire.Connect); ok {
			s.handleConnect(c, addr, now)
		}
		return
	}

	if v, _ := l.observe(h.Seq); v == sequence.VerdictDuplicate {
		// Still ack duplicates of reliable kinds; the original ack may
		// have been the lost packet.
		if h.Kind.Reliable() {
			s.sendAck(l, now)
		}
		return
	}
	s.registry.Touch(l.peer)

	switch m := p.(type) {
	case wire.Connect:
		// Retransmitted handshake from a connected peer.
		s.replyConnect(l, now)
	case wire.Disconnect:
		s.handleDisconnect(l, m, now)
	case wire.Input:
		s.handleInput(l, m, now)
	case wire.EntityUpdate:
		s.handleEntityUpdate(l, m, now)
	case wire.EntityCreate:
		s.handleEntityCreate(l, m, now)
	case wire.EntityDestroy:
		s.handleEntityDestroy(l, m, now)
	case wire.Chat:
		s.handleChat(l, m, now)
	case wire.Voice:
		s.handleVoice(l, m, now)
	case wire.RPC:
		s.handleRPC(l, m, now)
	case wire.Ping:
		s.send(l, wire.Pong{Echo: m.Timestamp}, now)
	case wire.Pong:
		rtt := wire.SinceMillis(m.Echo, now)
		s.registry.ObserveRTT(l.peer, rtt)
		s.metrics.PeerRTT.Observe(rtt.Seconds())
	case wire.Ack:
		l.applyAck(m.Ack, m.Bits)
	case wire.Keepalive:
		// Touch above is the whole point.
	}

	if h.Kind.Reliable() {
		s.sendAck(l, now)
	}
}

func (s *Server) sendAck(l *link, now time.Time) {
	latest, bits := l.ackField()
	s.send(l, wire.Ack{Ack: latest, Bits: bits}, now)
}

func (s *Server) handleConnect(c wire.Connect, addr net.Addr, now time.Time) {
	peer, err := s.registry.Connect(addr, c.Name, c.Caps)
	if err != nil {
		s.log.Warn("connect rejected", "from", addr.String(), "name", c.Name, "error", err)
		// A full or invalid connect gets a terse refusal; no session,
		// no link state.
		if b, encErr := wire.Encode(0, wire.Disconnect{Reason: rejectReason(err)}); encErr == nil {
			s.ep.Send(addr, b)
		}
		return
	}

	l := newLink(peer.ID, addr, s.cfg.Reliability.MaxRetries, now)
	s.addLink(l)
	s.metrics.PeersConnected.Set(float64(s.registry.Count()))

	if s.store != nil {
		go func(name, tokenHash string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.store.TouchProfile(ctx, name, tokenHash, now); err != nil {
				s.log.Warn("profile update failed", "name", name, "error", err)
			}
		}(peer.Name, token.Hash(peer.Token))
	}

	// Spawn the peer's avatar and hand it over.
	avatar := domain.Entity{
		ID:        domain.EntityID(s.nextEntity.Add(1)),
		Owner:     peer.ID,
		Type:      domain.EntityAvatar,
		Rotation:  vmath.QuatIdentity,
		UpdatedAt: now,
	}
	s.table.Upsert(avatar)
	if err := s.registry.OwnEntity(peer.ID, avatar.ID); err != nil {
		s.log.Error("avatar ownership failed", "peer", peer.ID, "error", err)
	}

	s.log.Info("peer connected",
		"peer", peer.ID,
		"name", peer.Name,
		"addr", addr.String(),
		"session", peer.Token)

	s.replyConnect(l, now)
	s.broadcast(entityCreatePacket(avatar, now), domain.ServerPeer, now)
}

// replyConnect sends (or resends) the handshake reply carrying the
// assigned peer id.
func (s *Server) replyConnect(l *link, now time.Time) {
	peer, ok := s.registry.Get(l.peer)
	if !ok {
		return
	}
	s.send(l, wire.Connect{Peer: uint32(peer.ID), Name: peer.Name, Caps: peer.Caps}, now)
}

func (s *Server) handleDisconnect(l *link, d wire.Disconnect, now time.Time) {
	s.dropPeer(l, "client requested", now)
}

// dropPeer ends a session: registry record, link state, channel
// limiter state, and entity ownership all go; the departure is
// announced to the remaining peers.
func (s *Server) dropPeer(l *link, reason string, now time.Time) {
	peer, err := s.registry.Disconnect(l.peer)
	if err != nil {
		return
	}
	s.removeLink(l.addr)
	s.chat.Forget(l.peer, now)
	s.voice.Forget(l.peer)

	released := s.table.ReleaseOwner(l.peer)
	s.metrics.PeersConnected.Set(float64(s.registry.Count()))

	s.log.Info("peer disconnected",
		"peer", peer.ID,
		"name", peer.Name,
		"reason", reason,
		"entities_released", len(released))

	s.broadcast(wire.Disconnect{Peer: uint32(peer.ID), Reason: reason}, peer.ID, now)
}

func (s *Server) handleInput(l *link, in wire.Input, now time.Time) {
	if !l.acceptInput(in.Seq) {
		return
	}
	sample := replication.InputSample{Seq: in.Seq, Buttons: in.Buttons, Move: in.Move}
	_, err := s.table.ApplyInput(
		domain.EntityID(in.Entity), l.peer, sample,
		s.cfg.Protocol.TickDuration(),
		s.cfg.Replication.MaxSpeed, now)
	if err != nil {
		s.log.Debug("input rejected", "peer", l.peer, "entity", in.Entity, "error", err)
	}
}

func (s *Server) handleEntityUpdate(l *link, u wire.EntityUpdate, now time.Time) {
	id := domain.EntityID(u.Entity)
	if !s.registry.Owns(l.peer, id) {
		s.log.Debug("update rejected", "peer", l.peer, "entity", u.Entity)
		return
	}
	s.table.Upsert(domain.Entity{
		ID:        id,
		Owner:     l.peer,
		Type:      domain.EntityType(u.Type),
		Flags:     u.Flags,
		Position:  u.Position,
		Rotation:  u.Rotation,
		Velocity:  u.Velocity,
		UpdatedAt: now,
	})
}

func (s *Server) handleEntityCreate(l *link, c wire.EntityCreate, now time.Time) {
	// The server assigns ids; whatever the client proposed is ignored.
	e := domain.Entity{
		ID:        domain.EntityID(s.nextEntity.Add(1)),
		Owner:     l.peer,
		Type:      domain.EntityType(c.Type),
		Flags:     c.Flags,
		Position:  c.Position,
		Rotation:  c.Rotation,
		Velocity:  c.Velocity,
		UpdatedAt: now,
	}
	if err := s.registry.OwnEntity(l.peer, e.ID); err != nil {
		s.log.Debug("create rejected", "peer", l.peer, "error", err)
		return
	}
	s.table.Upsert(e)
	// Everyone learns the new entity, including the requester, which
	// is how it discovers the assigned id.
	s.broadcast(entityCreatePacket(e, now), domain.ServerPeer, now)
}

func (s *Server) handleEntityDestroy(l *link, d wire.EntityDestroy, now time.Time) {
	id := domain.EntityID(d.Entity)
	if !s.registry.Owns(l.peer, id) {
		s.log.Debug("destroy rejected", "peer", l.peer, "entity", d.Entity)
		return
	}
	if !s.table.Remove(id) {
		return
	}
	s.registry.ReleaseEntity(l.peer, id)
	s.broadcast(wire.EntityDestroy{Entity: d.Entity}, domain.ServerPeer, now)
}

func (s *Server) handleChat(l *link, c wire.Chat, now time.Time) {
	msg, err := s.chat.Accept(l.peer, c, now)
	if err != nil {
		s.metrics.MessagesDropped.WithLabelValues("chat", dropReason(err)).Inc()
		return
	}
	s.broadcast(wire.Chat{Sender: uint32(msg.Sender), Text: msg.Text}, msg.Sender, now)
}

func (s *Server) handleVoice(l *link, v wire.Voice, now time.Time) {
	frame, err := s.voice.Accept(l.peer, v, now)
	if err != nil {
		s.metrics.MessagesDropped.WithLabelValues("voice", dropReason(err)).Inc()
		return
	}
	s.broadcast(frame, l.peer, now)
}

func (s *Server) handleRPC(l *link, call wire.RPC, now time.Time) {
	if call.Target != 0 {
		// Peer-to-peer call: route it through, source stamped in the
		// params by convention, target validated.
		target := domain.PeerID(call.Target)
		if peer, ok := s.registry.Get(target); ok {
			if tl, ok := s.linkFor(peer.Addr); ok {
				s.send(tl, call, now)
				return
			}
		}
		s.metrics.MessagesDropped.WithLabelValues("rpc", "unknown_target").Inc()
		return
	}
	if err := s.rpc.Dispatch(l.peer, call); err != nil {
		s.metrics.MessagesDropped.WithLabelValues("rpc", "handler_error").Inc()
		s.log.Warn("rpc failed", "peer", l.peer, "rpc", call.Name, "error", err)
	}
}

func rejectReason(err error) string {
	if errors.Is(err, domain.ErrRegistryFull) {
		return "server full"
	}
	if errors.Is(err, domain.ErrNameInvalid) {
		return "invalid name"
	}
	return "rejected"
}

func dropReason(err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return "rate_limited"
	}
	return "malformed"
}
