package transport

import (
	"net"
	"sync"
	"time"
)

// mergeQueueLen bounds the shared inbound queue of a merged endpoint.
const mergeQueueLen = 512

// MergedEndpoint fans several endpoints into one. Received datagrams
// from every source share one queue; sends are routed to the source
// whose address network matches the destination. The server uses this
// to accept UDP and WebSocket peers on the same loop.
type MergedEndpoint struct {
	counters

	eps    []Endpoint
	inbox  chan mergedDatagram
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

type mergedDatagram struct {
	from net.Addr
	b    []byte
}

// Merge combines the given endpoints. It starts one pump goroutine
// per source; Close stops them and closes the sources.
func Merge(eps ...Endpoint) *MergedEndpoint {
	m := &MergedEndpoint{
		eps:    eps,
		inbox:  make(chan mergedDatagram, mergeQueueLen),
		stopCh: make(chan struct{}),
	}
	for _, ep := range eps {
		m.wg.Add(1)
		go m.pump(ep)
	}
	return m
}

func (m *MergedEndpoint) pump(ep Endpoint) {
	defer m.wg.Done()
	buf := make([]byte, MaxDatagram)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}
		n, from, err := ep.Receive(buf)
		if err != nil {
			if err == ErrEndpointClosed {
				return
			}
			continue
		}
		dg := mergedDatagram{from: from, b: append([]byte(nil), buf[:n]...)}
		select {
		case m.inbox <- dg:
		case <-m.stopCh:
			return
		default:
			// Queue full: drop, as a congested socket would.
		}
	}
}

// Send routes the datagram to the source endpoint whose network
// matches addr, trying them in order otherwise.
func (m *MergedEndpoint) Send(addr net.Addr, b []byte) error {
	var firstErr error
	for _, ep := range m.eps {
		if ep.LocalAddr().Network() != addr.Network() {
			continue
		}
		err := ep.Send(addr, b)
		if err == nil {
			m.countSend(len(b))
		}
		return err
	}
	for _, ep := range m.eps {
		if err := ep.Send(addr, b); err == nil {
			m.countSend(len(b))
			return nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &TransmitError{Addr: addr, Err: ErrEndpointClosed}
	}
	return firstErr
}

// Receive returns the next datagram from any source, or ErrNoData
// after a short poll.
func (m *MergedEndpoint) Receive(buf []byte) (int, net.Addr, error) {
	select {
	case <-m.stopCh:
		return 0, nil, ErrEndpointClosed
	case dg := <-m.inbox:
		n := copy(buf, dg.b)
		m.countReceive(n)
		return n, dg.from, nil
	case <-time.After(time.Millisecond):
		return 0, nil, ErrNoData
	}
}

// LocalAddr returns the first source's address.
func (m *MergedEndpoint) LocalAddr() net.Addr {
	if len(m.eps) == 0 {
		return LoopbackAddr{Name: "merged"}
	}
	return m.eps[0].LocalAddr()
}

// Close stops the pumps and closes every source.
func (m *MergedEndpoint) Close() error {
	var err error
	m.once.Do(func() {
		close(m.stopCh)
		for _, ep := range m.eps {
			if cerr := ep.Close(); cerr != nil && err == nil && cerr != ErrEndpointClosed {
				err = cerr
			}
		}
		m.wg.Wait()
	})
	return err
}
