package client

import (
	"errors"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/replication"
	"github.com/unknownsaying/meshsync/internal/sequence"
	"github.com/unknownsaying/meshsync/internal/transport"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// Poll receives and handles at most one datagram. It returns false
// when no data was ready. buf must hold wire.MaxPacketSize bytes;
// passing nil allocates one.
func (c *Client) Poll(buf []byte, now time.Time) bool {
	if buf == nil {
		buf = make([]byte, wire.MaxPacketSize)
	}
	n, _, err := c.ep.Receive(buf)
	if err != nil {
		if errors.Is(err, transport.ErrEndpointClosed) {
			c.closed = true
			c.connected = false
		}
		return false
	}

	h, p, err := wire.Decode(buf[:n])
	if err != nil {
		c.log.Debug("dropped datagram", "error", err)
		return true
	}

	if v, _ := c.tracker.Observe(h.Seq); v == sequence.VerdictDuplicate {
		if h.Kind.Reliable() {
			c.sendAck(now)
		}
		return true
	}

	c.handle(p, now)
	if h.Kind.Reliable() {
		c.sendAck(now)
	}
	return true
}

// Drain handles every datagram currently queued on the endpoint.
func (c *Client) Drain(now time.Time) int {
	buf := make([]byte, wire.MaxPacketSize)
	n := 0
	for c.Poll(buf, now) {
		n++
	}
	return n
}

func (c *Client) sendAck(now time.Time) {
	latest, bits := c.tracker.AckField()
	if err := c.send(wire.Ack{Ack: latest, Bits: bits}, now); err != nil {
		c.log.Debug("ack send failed", "error", err)
	}
}

func (c *Client) handle(p wire.Payload, now time.Time) {
	switch m := p.(type) {
	case wire.Connect:
		if !c.connected {
			c.peer = domain.PeerID(m.Peer)
			c.connected = true
		}
	case wire.Disconnect:
		// Only the server's own notice ends the session; peer
		// departures surface through entity ownership changes.
		if domain.PeerID(m.Peer) == domain.ServerPeer || domain.PeerID(m.Peer) == c.peer || !c.connected {
			c.connected = false
			c.closed = true
			c.log.Info("session ended", "reason", m.Reason)
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(m.Reason)
			}
		}
	case wire.Snapshot:
		c.handleSnapshot(m, now)
	case wire.EntityCreate:
		c.handleEntityCreate(m, now)
	case wire.EntityDestroy:
		id := domain.EntityID(m.Entity)
		c.table.Remove(id)
		c.interp.Forget(id)
		c.pred.Release(id)
		if id == c.avatar {
			c.avatar = 0
		}
		if c.handlers.OnEntityDestroy != nil {
			c.handlers.OnEntityDestroy(id)
		}
	case wire.EntityUpdate:
		e := c.table.Apply(domain.EntityDelta{
			ID:       domain.EntityID(m.Entity),
			Mask:     domain.MaskAll,
			Owner:    domain.PeerID(m.Owner),
			Type:     domain.EntityType(m.Type),
			Position: m.Position,
			Rotation: m.Rotation,
			Velocity: m.Velocity,
		}, now)
		if e.Owner != c.peer {
			c.interp.Observe(deltaOf(e), now)
		}
	case wire.Chat:
		if c.handlers.OnChat != nil {
			c.handlers.OnChat(domain.PeerID(m.Sender), m.Text)
		}
	case wire.Voice:
		if c.handlers.OnVoice != nil {
			c.handlers.OnVoice(m)
		}
	case wire.RPC:
		if err := c.rpc.Dispatch(domain.ServerPeer, m); err != nil {
			c.log.Warn("rpc failed", "rpc", m.Name, "error", err)
		}
	case wire.Ping:
		if err := c.send(wire.Pong{Echo: m.Timestamp}, now); err != nil {
			c.log.Debug("pong send failed", "error", err)
		}
	case wire.Pong:
		c.lastRTT = wire.SinceMillis(m.Echo, now)
		c.pongs++
	case wire.Ack:
		c.rq.Ack(m.Ack, m.Bits)
	case wire.Keepalive:
	}
}

func (c *Client) handleEntityCreate(m wire.EntityCreate, now time.Time) {
	e := domain.Entity{
		ID:        domain.EntityID(m.Entity),
		Owner:     domain.PeerID(m.Owner),
		Type:      domain.EntityType(m.Type),
		Flags:     m.Flags,
		Position:  m.Position,
		Rotation:  m.Rotation,
		Velocity:  m.Velocity,
		UpdatedAt: now,
	}
	c.table.Upsert(e)

	if e.Owner == c.peer {
		c.pred.Claim(e)
		if c.avatar == 0 && e.Type == domain.EntityAvatar {
			c.avatar = e.ID
		}
	} else {
		c.interp.Observe(deltaOf(e), now)
	}
	if c.handlers.OnEntityCreate != nil {
		c.handlers.OnEntityCreate(e)
	}
}

// handleSnapshot merges the authoritative deltas: owned entities are
// reconciled against the prediction and replayed, everything else
// feeds the interpolation buffers.
func (c *Client) handleSnapshot(s wire.Snapshot, now time.Time) {
	replayFrom := c.replayFrom(s.Timestamp, now)

	for _, d := range s.Entities {
		e := c.table.Apply(d, now)

		if e.Owner == c.peer {
			if _, owned := c.pred.State(e.ID); !owned {
				c.pred.Claim(e)
				continue
			}
			// Roll the buffered inputs the snapshot cannot have seen
			// forward over the authoritative state, then compare. Only
			// a genuine divergence snaps the prediction.
			authNow := c.rollForward(e, replayFrom)
			corr, diverged := c.pred.Reconcile(authNow, replayFrom)
			if diverged && c.handlers.OnCorrection != nil {
				c.handlers.OnCorrection(corr)
			}
			continue
		}

		c.interp.Observe(d, now)
	}
}

// rollForward replays the ring entries from replayFrom over the
// authoritative state using the shared movement model.
func (c *Client) rollForward(auth domain.Entity, replayFrom uint32) domain.Entity {
	for seq := replayFrom; seq != 0 && seq <= c.inputSeq; seq++ {
		rec := c.inputs[seq%inputRingSize]
		if rec.sample.Seq != seq {
			continue
		}
		auth = replication.Advance(auth, rec.sample, c.opts.TickDuration, c.opts.MaxSpeed)
	}
	return auth
}

// replayFrom estimates the first input the snapshot cannot have seen:
// the oldest unexpired ring entry sent after the snapshot was built.
func (c *Client) replayFrom(stamp uint32, now time.Time) uint32 {
	if c.inputSeq == 0 {
		return 0
	}
	builtAt := now.Add(-wire.SinceMillis(stamp, now))

	oldest := c.inputSeq
	if oldest > inputRingSize {
		oldest = c.inputSeq - inputRingSize + 1
	} else {
		oldest = 1
	}
	for seq := oldest; seq <= c.inputSeq; seq++ {
		rec := c.inputs[seq%inputRingSize]
		if rec.sample.Seq == seq && rec.sentAt.After(builtAt) {
			return seq
		}
	}
	return c.inputSeq + 1
}

func deltaOf(e domain.Entity) domain.EntityDelta {
	return domain.DeltaFrom(&e, nil)
}
