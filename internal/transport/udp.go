package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// DefaultPollInterval bounds how long Receive blocks waiting for a
// datagram before reporting ErrNoData.
const DefaultPollInterval = 5 * time.Millisecond

// UDPEndpoint is the production datagram transport.
type UDPEndpoint struct {
	counters

	conn   *net.UDPConn
	poll   time.Duration
	closed atomic.Bool
}

// ListenUDP binds a UDP endpoint. addr may use port 0 for an
// ephemeral port; poll <= 0 uses DefaultPollInterval.
func ListenUDP(addr string, poll time.Duration) (*UDPEndpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &UDPEndpoint{conn: conn, poll: poll}, nil
}

// Send transmits one datagram to addr.
func (e *UDPEndpoint) Send(addr net.Addr, b []byte) error {
	if e.closed.Load() {
		return ErrEndpointClosed
	}
	n, err := e.conn.WriteTo(b, addr)
	if err != nil {
		return &TransmitError{Addr: addr, Err: err}
	}
	e.countSend(n)
	return nil
}

// Receive polls for the next datagram for at most the poll interval.
func (e *UDPEndpoint) Receive(buf []byte) (int, net.Addr, error) {
	if e.closed.Load() {
		return 0, nil, ErrEndpointClosed
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(e.poll)); err != nil {
		return 0, nil, err
	}
	n, addr, err := e.conn.ReadFrom(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, ErrNoData
		}
		if e.closed.Load() {
			return 0, nil, ErrEndpointClosed
		}
		return 0, nil, err
	}
	e.countReceive(n)
	return n, addr, nil
}

// LocalAddr returns the bound UDP address.
func (e *UDPEndpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close releases the socket.
func (e *UDPEndpoint) Close() error {
	if e.closed.Swap(true) {
		return ErrEndpointClosed
	}
	return e.conn.Close()
}
