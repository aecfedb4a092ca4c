package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unknownsaying/meshsync/internal/channel"
	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/replication"
	"github.com/unknownsaying/meshsync/internal/server/config"
	"github.com/unknownsaying/meshsync/internal/session"
	"github.com/unknownsaying/meshsync/internal/storage"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
	"github.com/unknownsaying/meshsync/internal/telemetry/metric"
	"github.com/unknownsaying/meshsync/internal/transport"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// Options bundles the server's dependencies. Endpoint and Config are
// required; the rest default to working no-op or global instances.
type Options struct {
	Config   *config.ServerConfig
	Endpoint transport.Endpoint
	Log      logger.Logger
	Metrics  *metric.Metrics
	Store    *storage.Store
}

// Server is the authoritative simulation host.
type Server struct {
	cfg     *config.ServerConfig
	ep      transport.Endpoint
	log     logger.Logger
	metrics *metric.Metrics
	store   *storage.Store

	registry *session.Registry
	table    *replication.Table
	builder  *replication.Builder
	rpc      *channel.Dispatcher
	chat     *channel.ChatChannel
	voice    *channel.VoiceChannel

	mu    sync.Mutex
	links map[string]*link

	nextEntity     atomic.Uint64
	nextCheckpoint atomic.Uint64
	lastCheckpoint time.Time
	lastUpkeep     time.Time
	tickCount      uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New assembles a server from its options. When a store is present
// the latest world checkpoint is restored into the entity table.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Endpoint == nil {
		return nil, fmt.Errorf("server: endpoint is required")
	}
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = metric.New()
	}

	table := replication.NewTable()
	s := &Server{
		cfg:     opts.Config,
		ep:      opts.Endpoint,
		log:     log.With("component", "server"),
		metrics: metrics,
		store:   opts.Store,

		registry: session.NewRegistry(opts.Config.Server.MaxPeers),
		table:    table,
		builder: replication.NewBuilder(table,
			opts.Config.Protocol.MaxEntitiesPerPacket,
			opts.Config.Replication.StalenessCutoff),
		rpc:   channel.NewDispatcher(),
		chat:  channel.NewChatChannel(),
		voice: channel.NewVoiceChannel(),

		links:  make(map[string]*link),
		stopCh: make(chan struct{}),
	}

	if s.store != nil {
		if err := s.restoreCheckpoint(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RPC returns the dispatcher for registering named call handlers.
func (s *Server) RPC() *channel.Dispatcher { return s.rpc }

// Entity returns a copy of a tracked entity.
func (s *Server) Entity(id domain.EntityID) (domain.Entity, bool) { return s.table.Get(id) }

// ChatHistory returns recent chat, oldest first.
func (s *Server) ChatHistory() []channel.ChatMessage { return s.chat.History() }

// Peers returns copies of every connected peer session.
func (s *Server) Peers() []domain.Peer { return s.registry.Peers() }

// Peer returns a copy of one peer session.
func (s *Server) Peer(id domain.PeerID) (domain.Peer, bool) { return s.registry.Get(id) }

// Entities returns copies of every tracked entity.
func (s *Server) Entities() []domain.Entity { return s.table.All() }

// Kick ends a peer's session from the admin surface. The peer is
// told before its state is dropped.
func (s *Server) Kick(id domain.PeerID, reason string) error {
	var target *link
	for _, l := range s.allLinks() {
		if l.peer == id {
			target = l
			break
		}
	}
	if target == nil {
		return domain.ErrPeerNotFound
	}
	now := time.Now()
	s.send(target, wire.Disconnect{Peer: uint32(id), Reason: reason}, now)
	s.dropPeer(target, reason, now)
	return nil
}

// SpawnEntity creates a server-owned entity and announces it to all
// connected peers.
func (s *Server) SpawnEntity(e domain.Entity, now time.Time) domain.Entity {
	if e.ID == 0 {
		e.ID = domain.EntityID(s.nextEntity.Add(1))
	}
	e.Owner = domain.ServerPeer
	e.UpdatedAt = now
	s.table.Upsert(e)
	s.broadcast(entityCreatePacket(e, now), domain.ServerPeer, now)
	return e
}

// restoreCheckpoint seeds the entity table from the newest persisted
// checkpoint.
func (s *Server) restoreCheckpoint() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cp, err := s.store.LatestCheckpoint(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("server: restore checkpoint: %w", err)
	}

	now := time.Now()
	var maxID uint64
	for _, rec := range cp.Entities {
		e := rec.Entity(now)
		s.table.Upsert(e)
		if uint64(e.ID) > maxID {
			maxID = uint64(e.ID)
		}
	}
	s.nextEntity.Store(maxID)
	s.nextCheckpoint.Store(cp.ID)
	s.log.Info("world restored from checkpoint",
		"checkpoint", cp.ID,
		"entities", len(cp.Entities))
	return nil
}

// Run drives the server until ctx is canceled or Stop is called. The
// receive loop drains the endpoint in its own goroutine; the tick
// loop runs here at the configured rate.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("server running",
		"addr", s.ep.LocalAddr().String(),
		"tick_rate", s.cfg.Protocol.TickRate,
		"max_peers", s.cfg.Server.MaxPeers)

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		s.receiveLoop()
	}()

	ticker := time.NewTicker(s.cfg.Protocol.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			<-recvDone
			return ctx.Err()
		case <-s.stopCh:
			s.shutdown()
			<-recvDone
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Stop asks Run to exit. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// shutdown tells every peer the session is over and takes a final
// checkpoint.
func (s *Server) shutdown() {
	now := time.Now()
	for _, l := range s.allLinks() {
		s.send(l, wire.Disconnect{Peer: uint32(domain.ServerPeer), Reason: "server shutdown"}, now)
	}
	if s.store != nil {
		s.saveCheckpoint(now)
	}
	s.log.Info("server stopped", "peers", s.registry.Count())
}

// receiveLoop drains the endpoint until the server stops or the
// endpoint closes.
func (s *Server) receiveLoop() {
	buf := make([]byte, wire.MaxPacketSize)
	for !s.stopped() {
		if !s.PollOnce(buf) {
			continue
		}
	}
}

// PollOnce receives and handles at most one datagram. It returns
// false when no data was ready. buf must hold wire.MaxPacketSize
// bytes; passing nil allocates one.
func (s *Server) PollOnce(buf []byte) bool {
	if buf == nil {
		buf = make([]byte, wire.MaxPacketSize)
	}
	n, addr, err := s.ep.Receive(buf)
	if err != nil {
		if errors.Is(err, transport.ErrNoData) {
			return false
		}
		if errors.Is(err, transport.ErrEndpointClosed) {
			s.Stop()
			return false
		}
		s.log.Error("receive failed", "error", err)
		return false
	}

	s.metrics.BytesReceived.Add(float64(n))
	s.handleDatagram(buf[:n], addr, time.Now())
	return true
}

// Drain handles every datagram currently queued on the endpoint.
// Test harness entry point; Run uses the receive loop instead.
func (s *Server) Drain() int {
	buf := make([]byte, wire.MaxPacketSize)
	n := 0
	for s.PollOnce(buf) {
		n++
	}
	return n
}

// linkFor returns the wire state for an address, if the peer behind
// it has a session.
func (s *Server) linkFor(addr net.Addr) (*link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[addr.String()]
	return l, ok
}

func (s *Server) addLink(l *link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.addr.String()] = l
}

func (s *Server) removeLink(addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, addr.String())
}

func (s *Server) allLinks() []*link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

// send encodes and transmits one packet on a link, routing reliable
// kinds through the retransmission queue.
func (s *Server) send(l *link, p wire.Payload, now time.Time) {
	seq := l.nextSeq()
	b, err := wire.Encode(seq, p)
	if err != nil {
		s.log.Error("encode failed", "kind", p.Kind().String(), "error", err)
		return
	}
	if err := s.ep.Send(l.addr, b); err != nil {
		s.log.Warn("send failed", "peer", l.peer, "kind", p.Kind().String(), "error", err)
		return
	}
	if p.Kind().Reliable() || isReliableRPC(p) {
		l.rq.Track(seq, b, now)
	}
	l.lastSent = now
	s.metrics.PacketsSent.WithLabelValues(p.Kind().String()).Inc()
	s.metrics.BytesSent.Add(float64(len(b)))
}

// sendSnapshot transmits a per-peer encoded snapshot and records the
// sequence it rode on for baseline tracking.
func (s *Server) sendSnapshot(l *link, snap wire.Snapshot, id uint32, now time.Time) {
	seq := l.nextSeq()
	b, err := wire.Encode(seq, snap)
	if err != nil {
		s.log.Error("snapshot encode failed", "peer", l.peer, "error", err)
		return
	}
	if err := s.ep.Send(l.addr, b); err != nil {
		s.log.Warn("snapshot send failed", "peer", l.peer, "error", err)
		return
	}
	l.noteSnapshot(seq, id)
	l.lastSent = now
	s.metrics.PacketsSent.WithLabelValues(wire.KindSnapshot.String()).Inc()
	s.metrics.BytesSent.Add(float64(len(b)))
}

// broadcast sends a packet to every connected peer except one (use
// domain.ServerPeer to reach everyone).
func (s *Server) broadcast(p wire.Payload, except domain.PeerID, now time.Time) {
	for _, l := range s.allLinks() {
		if l.peer == except {
			continue
		}
		s.send(l, p, now)
	}
}

func isReliableRPC(p wire.Payload) bool {
	call, ok := p.(wire.RPC)
	return ok && call.Reliable
}

func entityCreatePacket(e domain.Entity, now time.Time) wire.EntityCreate {
	return wire.EntityCreate{EntityUpdate: wire.EntityUpdate{
		Entity:    uint64(e.ID),
		Owner:     uint32(e.Owner),
		Type:      uint8(e.Type),
		Flags:     e.Flags,
		Position:  e.Position,
		Rotation:  e.Rotation,
		Velocity:  e.Velocity,
		Timestamp: wire.Millis(now),
	}}
}
