package server

import (
	"io"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/server/config"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
	"github.com/unknownsaying/meshsync/internal/transport"
	"github.com/unknownsaying/meshsync/internal/wire"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// testClient drives one loopback spoke as a raw protocol peer so the
// server can be exercised without the client runtime.
type testClient struct {
	t    *testing.T
	ep   *transport.LoopbackEndpoint
	seq  uint16
	peer uint32
}

func (c *testClient) send(p wire.Payload) {
	c.t.Helper()
	c.seq++
	b, err := wire.Encode(c.seq, p)
	if err != nil {
		c.t.Fatalf("Encode(%v) error = %v", p.Kind(), err)
	}
	if err := c.ep.Send(transport.LoopbackAddr{Name: "server"}, b); err != nil {
		c.t.Fatalf("Send error = %v", err)
	}
}

// recv drains every datagram queued for the client and returns the
// decoded payloads in arrival order.
func (c *testClient) recv() []wire.Payload {
	c.t.Helper()
	var out []wire.Payload
	buf := make([]byte, wire.MaxPacketSize)
	for {
		n, _, err := c.ep.Receive(buf)
		if err != nil {
			return out
		}
		_, p, err := wire.Decode(buf[:n])
		if err != nil {
			c.t.Fatalf("Decode error = %v", err)
		}
		out = append(out, p)
	}
}

func (c *testClient) recvKind(k wire.Kind) (wire.Payload, bool) {
	for _, p := range c.recv() {
		if p.Kind() == k {
			return p, true
		}
	}
	return nil, false
}

func testConfig() *config.ServerConfig {
	cfg := config.Default()
	cfg.Server.MaxPeers = 4
	cfg.Protocol.TickRate = 10 // dt 100ms keeps movement arithmetic exact
	return cfg
}

func newTestServer(t *testing.T, cfg *config.ServerConfig, spokes ...string) (*Server, []*testClient) {
	t.Helper()
	hub, eps := transport.LoopbackHub("server", spokes...)
	quiet, err := logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
	if err != nil {
		t.Fatalf("logger.New error = %v", err)
	}
	srv, err := New(Options{Config: cfg, Endpoint: hub, Log: quiet})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	clients := make([]*testClient, len(eps))
	for i, ep := range eps {
		clients[i] = &testClient{t: t, ep: ep}
	}
	return srv, clients
}

// connect performs the handshake and returns the assigned peer id and
// the spawned avatar entity id.
func connect(t *testing.T, srv *Server, c *testClient, name string) uint64 {
	t.Helper()
	c.send(wire.Connect{Name: name})
	srv.Drain()

	var avatar uint64
	for _, p := range c.recv() {
		switch m := p.(type) {
		case wire.Connect:
			c.peer = m.Peer
		case wire.EntityCreate:
			avatar = m.Entity
		}
	}
	if c.peer == 0 {
		t.Fatalf("connect reply for %q carried no peer id", name)
	}
	if avatar == 0 {
		t.Fatalf("connect for %q spawned no avatar", name)
	}
	return avatar
}

func TestConnectHandshake(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a", "b")
	a, b := cs[0], cs[1]

	avatarA := connect(t, srv, a, "alice")
	if a.peer != 1 {
		t.Errorf("first peer id = %d, want 1", a.peer)
	}

	avatarB := connect(t, srv, b, "bob")
	if b.peer != 2 {
		t.Errorf("second peer id = %d, want 2", b.peer)
	}
	if avatarA == avatarB {
		t.Errorf("avatars share entity id %d", avatarA)
	}

	// alice must learn about bob's avatar.
	p, ok := a.recvKind(wire.KindEntityCreate)
	if !ok {
		t.Fatal("no EntityCreate broadcast for second avatar")
	}
	if got := p.(wire.EntityCreate).Entity; got != avatarB {
		t.Errorf("broadcast entity = %d, want %d", got, avatarB)
	}
}

func TestConnectRetransmitIsIdempotent(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a")
	a := cs[0]

	connect(t, srv, a, "alice")
	first := a.peer

	// The reply was lost; the client sends Connect again.
	a.send(wire.Connect{Name: "alice"})
	srv.Drain()

	p, ok := a.recvKind(wire.KindConnect)
	if !ok {
		t.Fatal("no reply to retransmitted Connect")
	}
	if got := p.(wire.Connect).Peer; got != first {
		t.Errorf("retransmit peer id = %d, want %d", got, first)
	}
	if n := srv.registry.Count(); n != 1 {
		t.Errorf("registry count = %d, want 1", n)
	}
}

func TestConnectRejectsWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxPeers = 1
	srv, cs := newTestServer(t, cfg, "a", "b")

	connect(t, srv, cs[0], "alice")

	cs[1].send(wire.Connect{Name: "bob"})
	srv.Drain()

	p, ok := cs[1].recvKind(wire.KindDisconnect)
	if !ok {
		t.Fatal("full server sent no Disconnect")
	}
	if got := p.(wire.Disconnect).Reason; got != "server full" {
		t.Errorf("reject reason = %q, want %q", got, "server full")
	}
}

func TestInputMovesOwnedEntity(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a", "b")
	a, b := cs[0], cs[1]
	avatarA := connect(t, srv, a, "alice")
	connect(t, srv, b, "bob")
	a.recv()
	b.recv()

	a.send(wire.Input{Seq: 1, Entity: avatarA, Move: vmath.Vec3{X: 1}})
	srv.Drain()

	// dt 100ms at max speed 10 moves one unit along x.
	e, ok := srv.table.Get(domain.EntityID(avatarA))
	if !ok {
		t.Fatal("avatar missing from table")
	}
	moved := e.Position.X
	if diff := moved - 1; diff < -1e-4 || diff > 1e-4 {
		t.Errorf("Position.X = %v, want 1", moved)
	}

	// bob may not drive alice's avatar.
	b.send(wire.Input{Seq: 1, Entity: avatarA, Move: vmath.Vec3{X: 1}})
	srv.Drain()
	e, _ = srv.table.Get(domain.EntityID(avatarA))
	if e.Position.X != moved {
		t.Errorf("foreign input moved entity to x=%v", e.Position.X)
	}
}

func TestStaleInputDropped(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a")
	a := cs[0]
	avatar := connect(t, srv, a, "alice")

	a.send(wire.Input{Seq: 5, Entity: avatar, Move: vmath.Vec3{X: 1}})
	srv.Drain()
	e, _ := srv.table.Get(domain.EntityID(avatar))
	moved := e.Position.X

	a.send(wire.Input{Seq: 3, Entity: avatar, Move: vmath.Vec3{X: 1}})
	srv.Drain()
	e, _ = srv.table.Get(domain.EntityID(avatar))
	if e.Position.X != moved {
		t.Errorf("Position.X = %v, want %v (stale input must not apply)", e.Position.X, moved)
	}
}

func TestSnapshotBroadcastOnInterval(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a")
	a := cs[0]
	avatar := connect(t, srv, a, "alice")
	a.recv()

	now := time.Now()
	srv.Tick(now)
	if _, ok := a.recvKind(wire.KindSnapshot); ok {
		t.Fatal("snapshot sent before the snapshot interval elapsed")
	}
	srv.Tick(now.Add(100 * time.Millisecond))

	p, ok := a.recvKind(wire.KindSnapshot)
	if !ok {
		t.Fatal("no snapshot after two ticks")
	}
	snap := p.(wire.Snapshot)
	found := false
	for _, d := range snap.Entities {
		if uint64(d.ID) == avatar {
			found = true
		}
	}
	if !found {
		t.Errorf("snapshot %d omits avatar %d", snap.ID, avatar)
	}
}

func TestEntityCreateAssignsServerID(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a")
	a := cs[0]
	avatar := connect(t, srv, a, "alice")
	a.recv()

	a.send(wire.EntityCreate{EntityUpdate: wire.EntityUpdate{
		Entity:   9999, // client proposal, must be replaced
		Type:     uint8(domain.EntityProjectile),
		Position: vmath.Vec3{X: 2},
	}})
	srv.Drain()

	p, ok := a.recvKind(wire.KindEntityCreate)
	if !ok {
		t.Fatal("no EntityCreate confirmation")
	}
	created := p.(wire.EntityCreate)
	if created.Entity == 9999 || created.Entity == avatar {
		t.Errorf("assigned entity id = %d, want a fresh server id", created.Entity)
	}
	if created.Owner != a.peer {
		t.Errorf("Owner = %d, want %d", created.Owner, a.peer)
	}
	if !srv.registry.Owns(domain.PeerID(a.peer), domain.EntityID(created.Entity)) {
		t.Error("registry does not record ownership of created entity")
	}
}

func TestDisconnectReleasesEntities(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a", "b")
	a, b := cs[0], cs[1]
	avatarA := connect(t, srv, a, "alice")
	connect(t, srv, b, "bob")
	b.recv()

	a.send(wire.Disconnect{})
	srv.Drain()

	if n := srv.registry.Count(); n != 1 {
		t.Errorf("registry count after disconnect = %d, want 1", n)
	}
	e, ok := srv.table.Get(domain.EntityID(avatarA))
	if !ok {
		t.Fatal("released avatar vanished from table")
	}
	if e.Owner != domain.ServerPeer {
		t.Errorf("released avatar owner = %d, want server", e.Owner)
	}

	p, ok := b.recvKind(wire.KindDisconnect)
	if !ok {
		t.Fatal("no Disconnect broadcast to remaining peer")
	}
	if got := p.(wire.Disconnect).Peer; got != a.peer {
		t.Errorf("broadcast peer = %d, want %d", got, a.peer)
	}
}

func TestChatBroadcastSkipsSender(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a", "b")
	a, b := cs[0], cs[1]
	connect(t, srv, a, "alice")
	connect(t, srv, b, "bob")
	a.recv()
	b.recv()

	a.send(wire.Chat{Text: "hello"})
	srv.Drain()

	p, ok := b.recvKind(wire.KindChat)
	if !ok {
		t.Fatal("chat not delivered to other peer")
	}
	msg := p.(wire.Chat)
	if msg.Text != "hello" || msg.Sender != a.peer {
		t.Errorf("chat = %+v, want text %q from %d", msg, "hello", a.peer)
	}
	if _, ok := a.recvKind(wire.KindChat); ok {
		t.Error("chat echoed back to sender")
	}
	if h := srv.ChatHistory(); len(h) != 1 || h[0].Text != "hello" {
		t.Errorf("history = %+v, want one entry %q", h, "hello")
	}
}

func TestRPCRoutedToTarget(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a", "b")
	a, b := cs[0], cs[1]
	connect(t, srv, a, "alice")
	connect(t, srv, b, "bob")
	a.recv()
	b.recv()

	var gotFrom domain.PeerID
	var gotParams []byte
	if err := srv.RPC().Register("set_ready", func(from domain.PeerID, params []byte) error {
		gotFrom = from
		gotParams = params
		return nil
	}); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	// Target 0 dispatches on the server.
	a.send(wire.RPC{Name: "set_ready", Params: []byte{1}})
	srv.Drain()
	if gotFrom != domain.PeerID(a.peer) || len(gotParams) != 1 {
		t.Errorf("dispatch from=%d params=%v, want from=%d params=[1]", gotFrom, gotParams, a.peer)
	}

	// A nonzero target is forwarded verbatim.
	a.send(wire.RPC{Name: "poke", Target: b.peer, Params: []byte("hi")})
	srv.Drain()
	p, ok := b.recvKind(wire.KindRPC)
	if !ok {
		t.Fatal("targeted rpc not forwarded")
	}
	call := p.(wire.RPC)
	if call.Name != "poke" || string(call.Params) != "hi" {
		t.Errorf("forwarded rpc = %+v", call)
	}
}

func TestKeepaliveEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Reliability.KeepaliveInterval = 5 * time.Millisecond // timeout 15ms
	srv, cs := newTestServer(t, cfg, "a", "b")
	a, b := cs[0], cs[1]
	connect(t, srv, a, "alice")
	connect(t, srv, b, "bob")
	a.recv()
	b.recv()

	// Both peers age past the timeout, then bob alone checks in.
	time.Sleep(cfg.Reliability.EffectivePeerTimeout() + 10*time.Millisecond)
	b.send(wire.Keepalive{})
	srv.Drain()
	srv.upkeep(time.Now())

	if n := srv.registry.Count(); n != 1 {
		t.Fatalf("registry count after eviction = %d, want 1", n)
	}
	if _, ok := srv.registry.Get(domain.PeerID(b.peer)); !ok {
		t.Error("surviving peer evicted instead of the silent one")
	}
	p, ok := b.recvKind(wire.KindDisconnect)
	if !ok {
		t.Fatal("no Disconnect broadcast after eviction")
	}
	if got := p.(wire.Disconnect).Reason; got != "timed out" {
		t.Errorf("eviction reason = %q, want %q", got, "timed out")
	}
}

func TestReliableRetransmitUntilAck(t *testing.T) {
	cfg := testConfig()
	srv, cs := newTestServer(t, cfg, "a")
	a := cs[0]
	connect(t, srv, a, "alice")
	a.recv()

	// SpawnEntity broadcasts a reliable EntityCreate.
	now := time.Now()
	srv.SpawnEntity(domain.Entity{Type: domain.EntityObject}, now)
	p, ok := a.recvKind(wire.KindEntityCreate)
	if !ok {
		t.Fatal("no EntityCreate for spawned entity")
	}
	spawned := p.(wire.EntityCreate)

	// No ack arrives; the packet must be retransmitted.
	srv.Tick(now.Add(cfg.Reliability.RetryTimeout + time.Millisecond))
	found := false
	for _, p := range a.recv() {
		if m, ok := p.(wire.EntityCreate); ok && m.Entity == spawned.Entity {
			found = true
		}
	}
	if !found {
		t.Errorf("no retransmit of entity %d after retry timeout", spawned.Entity)
	}
}

func TestUnreachablePeerDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Reliability.MaxRetries = 2
	srv, cs := newTestServer(t, cfg, "a")
	a := cs[0]
	connect(t, srv, a, "alice")
	a.recv()

	now := time.Now()
	srv.SpawnEntity(domain.Entity{Type: domain.EntityObject}, now)
	for i := 1; i <= int(cfg.Reliability.MaxRetries)+1; i++ {
		now = now.Add(cfg.Reliability.RetryTimeout + time.Millisecond)
		srv.Tick(now)
	}

	if n := srv.registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0 after retry budget exhausted", n)
	}
	if ls := srv.allLinks(); len(ls) != 0 {
		t.Errorf("links remaining = %d, want 0", len(ls))
	}
}

func TestMalformedDatagramCounted(t *testing.T) {
	srv, cs := newTestServer(t, testConfig(), "a")
	a := cs[0]
	connect(t, srv, a, "alice")

	if err := a.ep.Send(transport.LoopbackAddr{Name: "server"}, []byte{1, 2}); err != nil {
		t.Fatalf("Send error = %v", err)
	}
	srv.Drain()

	if n := srv.registry.Count(); n != 1 {
		t.Errorf("registry count = %d, want 1 (malformed packet must not disturb session)", n)
	}
}
