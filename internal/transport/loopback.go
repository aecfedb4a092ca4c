package transport

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// loopbackQueueLen bounds each direction of a loopback pair. A full
// queue drops the datagram, which is exactly what a congested real
// network would do.
const loopbackQueueLen = 256

// LoopbackAddr is the synthetic address of a loopback endpoint.
type LoopbackAddr struct {
	Name string
}

func (a LoopbackAddr) Network() string { return "loopback" }
func (a LoopbackAddr) String() string  { return "loopback:" + a.Name }

type loopbackDatagram struct {
	from net.Addr
	b    []byte
}

// LoopbackEndpoint is an in-memory Endpoint used by tests and the
// end-to-end scenario suite. It delivers to a fixed set of peers
// registered at construction.
type LoopbackEndpoint struct {
	counters

	addr   LoopbackAddr
	inbox  chan loopbackDatagram
	peers  map[string]*LoopbackEndpoint
	poll   time.Duration
	closed atomic.Bool

	// DropSend, when set, discards every nth outgoing datagram
	// (1 = drop all). Used to exercise loss handling.
	DropSend atomic.Int64
	sent     atomic.Int64
}

// LoopbackPair returns two connected endpoints named a and b.
func LoopbackPair(a, b string) (*LoopbackEndpoint, *LoopbackEndpoint) {
	ea := newLoopback(a)
	eb := newLoopback(b)
	ea.peers[eb.addr.String()] = eb
	eb.peers[ea.addr.String()] = ea
	return ea, eb
}

// LoopbackHub returns one hub endpoint plus n spoke endpoints, all
// connected to the hub. Spokes can reach only the hub, mirroring a
// client-server topology.
func LoopbackHub(hub string, spokes ...string) (*LoopbackEndpoint, []*LoopbackEndpoint) {
	h := newLoopback(hub)
	out := make([]*LoopbackEndpoint, len(spokes))
	for i, name := range spokes {
		s := newLoopback(name)
		s.peers[h.addr.String()] = h
		h.peers[s.addr.String()] = s
		out[i] = s
	}
	return h, out
}

func newLoopback(name string) *LoopbackEndpoint {
	return &LoopbackEndpoint{
		addr:  LoopbackAddr{Name: name},
		inbox: make(chan loopbackDatagram, loopbackQueueLen),
		peers: make(map[string]*LoopbackEndpoint),
		poll:  time.Millisecond,
	}
}

// Send delivers a copy of b to the peer at addr, or drops it if the
// peer's queue is full or the drop knob fires.
func (e *LoopbackEndpoint) Send(addr net.Addr, b []byte) error {
	if e.closed.Load() {
		return ErrEndpointClosed
	}
	peer, ok := e.peers[addr.String()]
	if !ok {
		return &TransmitError{Addr: addr, Err: fmt.Errorf("unknown loopback peer")}
	}

	if nth := e.DropSend.Load(); nth > 0 && e.sent.Add(1)%nth == 0 {
		e.countSend(len(b)) // counted as sent, lost in flight
		return nil
	}

	dg := loopbackDatagram{from: e.addr, b: append([]byte(nil), b...)}
	select {
	case peer.inbox <- dg:
		e.countSend(len(b))
	default:
		// Queue full: datagram lost, like any congested link.
		e.countSend(len(b))
	}
	return nil
}

// Receive returns the next queued datagram or ErrNoData after the
// poll interval.
func (e *LoopbackEndpoint) Receive(buf []byte) (int, net.Addr, error) {
	if e.closed.Load() {
		return 0, nil, ErrEndpointClosed
	}
	select {
	case dg := <-e.inbox:
		n := copy(buf, dg.b)
		e.countReceive(n)
		return n, dg.from, nil
	case <-time.After(e.poll):
		return 0, nil, ErrNoData
	}
}

// LocalAddr returns the endpoint's synthetic address.
func (e *LoopbackEndpoint) LocalAddr() net.Addr { return e.addr }

// Close marks the endpoint closed.
func (e *LoopbackEndpoint) Close() error {
	if e.closed.Swap(true) {
		return ErrEndpointClosed
	}
	return nil
}
