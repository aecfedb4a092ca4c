package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// The websocket bridge lets clients that cannot open UDP sockets
// (browsers, restrictive NATs) speak the same datagram protocol:
// every binary websocket message is treated as one datagram. The
// bridge deliberately keeps websocket's ordering and reliability
// invisible to the layers above, which still run their own
// sequencing.

// WSAddr is the synthetic address of one bridged websocket client.
type WSAddr struct {
	Remote string
}

func (a WSAddr) Network() string { return "ws" }
func (a WSAddr) String() string  { return "ws:" + a.Remote }

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  MaxDatagram,
	WriteBufferSize: MaxDatagram,
	// The bridge fronts a game protocol, not a browser origin trust
	// boundary; origin policy belongs on the deployment's proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// MaxDatagram is the largest message the bridge will relay, matching
// the protocol's maximum packet size.
const MaxDatagram = 1400

// WSBridge is a server-side Endpoint fed by websocket clients. It
// implements http.Handler; mount it on the path clients dial.
type WSBridge struct {
	counters

	mu     sync.RWMutex
	conns  map[string]*wsConn
	inbox  chan loopbackDatagram
	poll   time.Duration
	closed atomic.Bool
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex // gorilla allows one concurrent writer
}

// NewWSBridge creates an empty bridge.
func NewWSBridge() *WSBridge {
	return &WSBridge{
		conns: make(map[string]*wsConn),
		inbox: make(chan loopbackDatagram, 1024),
		poll:  DefaultPollInterval,
	}
}

// ServeHTTP upgrades an incoming request and pumps its messages into
// the bridge inbox until the client goes away.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the response
	}

	addr := WSAddr{Remote: r.RemoteAddr}
	wc := &wsConn{c: c}
	b.mu.Lock()
	b.conns[addr.String()] = wc
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, addr.String())
		b.mu.Unlock()
		c.Close()
	}()

	c.SetReadLimit(MaxDatagram)
	for {
		kind, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}
		select {
		case b.inbox <- loopbackDatagram{from: addr, b: msg}:
		default:
			// Inbox full: drop, like a saturated socket buffer.
		}
	}
}

// Send relays one datagram to the bridged client at addr.
func (b *WSBridge) Send(addr net.Addr, p []byte) error {
	if b.closed.Load() {
		return ErrEndpointClosed
	}
	b.mu.RLock()
	wc, ok := b.conns[addr.String()]
	b.mu.RUnlock()
	if !ok {
		return &TransmitError{Addr: addr, Err: fmt.Errorf("no such websocket client")}
	}

	wc.mu.Lock()
	err := wc.c.WriteMessage(websocket.BinaryMessage, p)
	wc.mu.Unlock()
	if err != nil {
		return &TransmitError{Addr: addr, Err: err}
	}
	b.countSend(len(p))
	return nil
}

// Receive returns the next datagram from any bridged client.
func (b *WSBridge) Receive(buf []byte) (int, net.Addr, error) {
	if b.closed.Load() {
		return 0, nil, ErrEndpointClosed
	}
	select {
	case dg := <-b.inbox:
		n := copy(buf, dg.b)
		b.countReceive(n)
		return n, dg.from, nil
	case <-time.After(b.poll):
		return 0, nil, ErrNoData
	}
}

// LocalAddr identifies the bridge itself.
func (b *WSBridge) LocalAddr() net.Addr { return WSAddr{Remote: "bridge"} }

// Close drops every bridged connection.
func (b *WSBridge) Close() error {
	if b.closed.Swap(true) {
		return ErrEndpointClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, wc := range b.conns {
		wc.c.Close()
	}
	b.conns = make(map[string]*wsConn)
	return nil
}

// WSClient is the client side of the bridge: a single websocket
// connection exposed as an Endpoint whose only peer is the server.
// A pump goroutine owns all reads; a read deadline would poison the
// websocket, so Receive drains a channel instead.
type WSClient struct {
	counters

	c      *websocket.Conn
	server WSAddr
	inbox  chan []byte
	mu     sync.Mutex
	closed atomic.Bool
}

// DialWS connects to a bridge at url (ws://host/path).
func DialWS(url string) (*WSClient, error) {
	return DialWSTLS(url, nil)
}

// DialWSTLS connects like DialWS with an explicit TLS configuration
// for wss:// targets. A nil config uses the system roots.
func DialWSTLS(url string, tlsConf *tls.Config) (*WSClient, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConf,
	}
	c, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.SetReadLimit(MaxDatagram)
	w := &WSClient{
		c:      c,
		server: WSAddr{Remote: url},
		inbox:  make(chan []byte, 256),
	}
	go w.pump()
	return w, nil
}

func (w *WSClient) pump() {
	for {
		kind, msg, err := w.c.ReadMessage()
		if err != nil {
			close(w.inbox)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case w.inbox <- msg:
		default:
		}
	}
}

// Send transmits one datagram to the server; addr is ignored, the
// bridge has exactly one peer.
func (w *WSClient) Send(_ net.Addr, p []byte) error {
	if w.closed.Load() {
		return ErrEndpointClosed
	}
	w.mu.Lock()
	err := w.c.WriteMessage(websocket.BinaryMessage, p)
	w.mu.Unlock()
	if err != nil {
		return &TransmitError{Addr: w.server, Err: err}
	}
	w.countSend(len(p))
	return nil
}

// Receive returns the next datagram from the server.
func (w *WSClient) Receive(buf []byte) (int, net.Addr, error) {
	if w.closed.Load() {
		return 0, nil, ErrEndpointClosed
	}
	select {
	case msg, ok := <-w.inbox:
		if !ok {
			return 0, nil, ErrEndpointClosed
		}
		n := copy(buf, msg)
		w.countReceive(n)
		return n, w.server, nil
	case <-time.After(DefaultPollInterval):
		return 0, nil, ErrNoData
	}
}

// ServerAddr returns the synthetic address of the bridge server.
func (w *WSClient) ServerAddr() net.Addr { return w.server }

// LocalAddr returns the websocket's local address.
func (w *WSClient) LocalAddr() net.Addr { return w.c.LocalAddr() }

// Close shuts the connection down.
func (w *WSClient) Close() error {
	if w.closed.Swap(true) {
		return ErrEndpointClosed
	}
	return w.c.Close()
}
