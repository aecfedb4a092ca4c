package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/unknownsaying/meshsync/internal/client"
	"github.com/unknownsaying/meshsync/internal/infra/tlsroots"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
	"github.com/unknownsaying/meshsync/internal/transport"
)

// udpPoll is the receive poll interval for the CLI's endpoint.
const udpPoll = 5 * time.Millisecond

// Session is a connected CLI session plus the resources to release
// when it ends.
type Session struct {
	Client *client.Client
	ep     transport.Endpoint
}

// DialOption adjusts how Dial reaches the server.
type DialOption func(*dialConfig)

type dialConfig struct {
	caFile string
}

// WithCACert trusts the CA certificates in the given PEM file when
// dialing a wss:// target, in addition to the system roots. Ignored
// for plain UDP and ws:// targets.
func WithCACert(path string) DialOption {
	return func(c *dialConfig) { c.caFile = path }
}

// Dial resolves target, performs the handshake, and returns the
// session. target is either "host:port" for UDP or a ws:// URL for
// the WebSocket bridge.
func Dial(ctx context.Context, target, name string, h client.Handlers, log logger.Logger, opts ...DialOption) (*Session, error) {
	var dc dialConfig
	for _, opt := range opts {
		opt(&dc)
	}

	ep, serverAddr, err := endpointFor(target, dc)
	if err != nil {
		return nil, err
	}

	c, err := client.New(client.Options{
		Endpoint:   ep,
		ServerAddr: serverAddr,
		Name:       name,
		Log:        log,
	}, h)
	if err != nil {
		ep.Close()
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		ep.Close()
		return nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return &Session{Client: c, ep: ep}, nil
}

// Close sends the disconnect notice and releases the endpoint.
func (s *Session) Close() error {
	s.Client.Close()
	return s.ep.Close()
}

// Pump drives the client until ctx is done, polling the endpoint and
// running the periodic duties.
func (s *Session) Pump(ctx context.Context) {
	buf := make([]byte, 2048)
	for ctx.Err() == nil && s.Client.Connected() {
		now := time.Now()
		if !s.Client.Poll(buf, now) {
			s.Client.Tick(now)
		}
	}
}

func endpointFor(target string, dc dialConfig) (transport.Endpoint, net.Addr, error) {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		tlsConf, err := tlsConfigFor(dc)
		if err != nil {
			return nil, nil, err
		}
		ws, err := transport.DialWSTLS(target, tlsConf)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", target, err)
		}
		return ws, ws.ServerAddr(), nil
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	ep, err := transport.ListenUDP("0.0.0.0:0", udpPoll)
	if err != nil {
		return nil, nil, fmt.Errorf("open udp socket: %w", err)
	}
	return ep, addr, nil
}

func tlsConfigFor(dc dialConfig) (*tls.Config, error) {
	if dc.caFile == "" {
		return nil, nil
	}
	pool, err := tlsroots.NewPool()
	if err != nil {
		return nil, fmt.Errorf("load system roots: %w", err)
	}
	if err := pool.AddCertFile(dc.caFile); err != nil {
		return nil, err
	}
	return pool.TLSConfig(), nil
}
