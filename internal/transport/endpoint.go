package transport

import (
	"errors"
	"net"
	"sync/atomic"
)

// ErrNoData is returned by Receive when no datagram is pending within
// the poll interval.
var ErrNoData = errors.New("transport: no data")

// ErrEndpointClosed is returned once the endpoint has been closed.
var ErrEndpointClosed = errors.New("transport: endpoint closed")

// TransmitError wraps a socket-level send failure. The connection to
// the affected peer may be degraded but the endpoint stays usable.
type TransmitError struct {
	Addr net.Addr
	Err  error
}

func (e *TransmitError) Error() string {
	return "transport: send to " + e.Addr.String() + ": " + e.Err.Error()
}

func (e *TransmitError) Unwrap() error { return e.Err }

// Endpoint is one datagram socket. Implementations are safe for one
// concurrent receiver and any number of senders.
type Endpoint interface {
	// Send transmits one datagram to addr.
	Send(addr net.Addr, b []byte) error

	// Receive fills buf with the next pending datagram and returns
	// its length and origin, or ErrNoData after the poll interval.
	Receive(buf []byte) (int, net.Addr, error)

	// LocalAddr returns the endpoint's bound address.
	LocalAddr() net.Addr

	// Stats returns the raw byte counters.
	Stats() Stats

	// Close releases the socket. Subsequent calls return
	// ErrEndpointClosed.
	Close() error
}

// Stats are the endpoint's raw traffic counters, maintained with
// atomics so readers never contend with the datapath.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
}

// counters is embedded by endpoint implementations.
type counters struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

func (c *counters) countSend(n int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

func (c *counters) countReceive(n int) {
	c.packetsReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
}

func (c *counters) Stats() Stats {
	return Stats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
	}
}
