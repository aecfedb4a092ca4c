package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/unknownsaying/meshsync/internal/channel"
	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/replication"
	"github.com/unknownsaying/meshsync/internal/sequence"
	"github.com/unknownsaying/meshsync/internal/server/config"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
	"github.com/unknownsaying/meshsync/internal/transport"
	"github.com/unknownsaying/meshsync/internal/wire"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// inputRingSize bounds the unacknowledged input history kept for
// reconciliation replay.
const inputRingSize = 128

// ErrNotConnected is returned by senders before the handshake
// completes or after the session ends.
var ErrNotConnected = errors.New("client: not connected")

// Options configures a client. Endpoint, ServerAddr, and Name are
// required; zero durations and epsilons fall back to the protocol
// defaults.
type Options struct {
	Endpoint   transport.Endpoint
	ServerAddr net.Addr
	Name       string
	Caps       uint32
	Log        logger.Logger

	// TickDuration is the simulation step used for prediction. It
	// must match the server's tick or replayed movement diverges.
	TickDuration time.Duration

	InterpolationWindow time.Duration
	StalenessCutoff     time.Duration
	EpsilonPos          float32
	EpsilonRot          float32
	MaxSpeed            float32

	MaxRetries        int
	RetryTimeout      time.Duration
	KeepaliveInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.TickDuration <= 0 {
		o.TickDuration = time.Second / config.DefaultTickRate
	}
	if o.InterpolationWindow <= 0 {
		o.InterpolationWindow = config.DefaultInterpolationWindow
	}
	if o.StalenessCutoff <= 0 {
		o.StalenessCutoff = config.DefaultStalenessCutoff
	}
	if o.EpsilonPos <= 0 {
		o.EpsilonPos = config.DefaultEpsilonPos
	}
	if o.EpsilonRot <= 0 {
		o.EpsilonRot = config.DefaultEpsilonRot
	}
	if o.MaxSpeed <= 0 {
		o.MaxSpeed = config.DefaultMaxSpeed
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = config.DefaultMaxRetries
	}
	if o.RetryTimeout <= 0 {
		o.RetryTimeout = config.DefaultRetryTimeout
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = config.DefaultKeepaliveInterval
	}
}

// Handlers are the application callbacks for pushed traffic. Nil
// fields are ignored.
type Handlers struct {
	OnChat          func(sender domain.PeerID, text string)
	OnVoice         func(frame wire.Voice)
	OnEntityCreate  func(e domain.Entity)
	OnEntityDestroy func(id domain.EntityID)
	OnDisconnect    func(reason string)
	OnCorrection    func(c replication.Correction)
}

type inputRecord struct {
	sample replication.InputSample
	sentAt time.Time
}

// Client is the protocol runtime for one session.
type Client struct {
	opts Options
	ep   transport.Endpoint
	addr net.Addr
	log  logger.Logger

	enum    sequence.Enumerator
	tracker sequence.Tracker
	rq      *sequence.ReliableQueue

	peer   domain.PeerID
	avatar domain.EntityID

	table  *replication.Table
	interp *replication.Interpolator
	pred   *replication.Predictor
	rpc    *channel.Dispatcher

	inputs   [inputRingSize]inputRecord
	inputSeq uint32

	handlers  Handlers
	connected bool
	closed    bool
	lastSent  time.Time
	lastRTT   time.Duration
	pongs     uint64
}

// New assembles a client. It does not touch the network; call
// Connect to perform the handshake.
func New(opts Options, h Handlers) (*Client, error) {
	if opts.Endpoint == nil {
		return nil, fmt.Errorf("client: endpoint is required")
	}
	if opts.ServerAddr == nil {
		return nil, fmt.Errorf("client: server address is required")
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("client: name is required")
	}
	opts.applyDefaults()
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}

	return &Client{
		opts:     opts,
		ep:       opts.Endpoint,
		addr:     opts.ServerAddr,
		log:      log.With("component", "client"),
		rq:       sequence.NewReliableQueue(opts.MaxRetries),
		table:    replication.NewTable(),
		interp:   replication.NewInterpolator(opts.InterpolationWindow, opts.StalenessCutoff),
		pred:     replication.NewPredictor(opts.EpsilonPos, opts.EpsilonRot, opts.MaxSpeed),
		rpc:      channel.NewDispatcher(),
		handlers: h,
	}, nil
}

// Peer returns the server-assigned peer id, zero before Connect.
func (c *Client) Peer() domain.PeerID { return c.peer }

// Avatar returns the entity id of this client's avatar, zero until
// the server announces it.
func (c *Client) Avatar() domain.EntityID { return c.avatar }

// Connected reports whether the handshake has completed.
func (c *Client) Connected() bool { return c.connected && !c.closed }

// RTT returns the last round trip estimate from a Pong.
func (c *Client) RTT() time.Duration { return c.lastRTT }

// Pongs returns how many Pong replies have been received.
func (c *Client) Pongs() uint64 { return c.pongs }

// RPC returns the dispatcher for server- or peer-initiated calls.
func (c *Client) RPC() *channel.Dispatcher { return c.rpc }

// Connect performs the handshake: the Connect request is resent on
// the retry cadence until the server replies with an assigned peer id
// or ctx expires.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed {
		return ErrNotConnected
	}
	if err := c.send(wire.Connect{Name: c.opts.Name, Caps: c.opts.Caps}, time.Now()); err != nil {
		return err
	}

	buf := make([]byte, wire.MaxPacketSize)
	retry := time.NewTicker(c.opts.RetryTimeout)
	defer retry.Stop()
	for !c.connected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-retry.C:
			if err := c.retransmit(now); err != nil {
				return err
			}
		default:
			c.Poll(buf, time.Now())
		}
	}
	c.log.Info("connected", "peer", c.peer, "server", c.addr.String())
	return nil
}

// SendInput predicts one simulation step locally and sends the input
// to the server. Returns the predicted state of the avatar.
func (c *Client) SendInput(move vmath.Vec3, buttons uint32, now time.Time) (domain.Entity, error) {
	if !c.Connected() || c.avatar == 0 {
		return domain.Entity{}, ErrNotConnected
	}

	c.inputSeq++
	sample := replication.InputSample{Seq: c.inputSeq, Buttons: buttons, Move: move}
	c.inputs[c.inputSeq%inputRingSize] = inputRecord{sample: sample, sentAt: now}

	predicted, _ := c.pred.Step(c.avatar, sample, c.opts.TickDuration)

	err := c.send(wire.Input{
		Seq:     sample.Seq,
		Entity:  uint64(c.avatar),
		Buttons: buttons,
		Move:    move,
	}, now)
	return predicted, err
}

// CreateEntity asks the server to spawn an entity owned by this
// client. The assigned id arrives in the EntityCreate broadcast.
func (c *Client) CreateEntity(e domain.Entity, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(wire.EntityCreate{EntityUpdate: entityUpdate(e, now)}, now)
}

// DestroyEntity asks the server to remove an entity this client owns.
func (c *Client) DestroyEntity(id domain.EntityID, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(wire.EntityDestroy{Entity: uint64(id)}, now)
}

// UpdateEntity pushes an authoritative pose for an owned non-avatar
// entity.
func (c *Client) UpdateEntity(e domain.Entity, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(entityUpdate(e, now), now)
}

// Chat sends a chat line.
func (c *Client) Chat(text string, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(wire.Chat{Text: text}, now)
}

// Voice sends one encoded voice frame.
func (c *Client) Voice(frame wire.Voice, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(frame, now)
}

// Call invokes a named procedure on the server (target zero) or a
// specific peer. Reliable calls are retransmitted until acked.
func (c *Client) Call(name string, target domain.PeerID, reliable bool, params []byte, now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(wire.RPC{
		Name:     name,
		Target:   uint32(target),
		Reliable: reliable,
		Params:   params,
	}, now)
}

// Ping sends a ping; the RTT estimate updates when the Pong returns.
func (c *Client) Ping(now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(wire.Ping{Timestamp: wire.Millis(now)}, now)
}

// Views returns the interpolated render states of every remote
// entity.
func (c *Client) Views(now time.Time) []replication.View {
	return c.interp.Views(now)
}

// View returns the interpolated render state of one remote entity.
func (c *Client) View(id domain.EntityID, now time.Time) (replication.View, bool) {
	return c.interp.At(id, now)
}

// Predicted returns the locally predicted state of an owned entity.
func (c *Client) Predicted(id domain.EntityID) (domain.Entity, bool) {
	return c.pred.State(id)
}

// Tick runs the client's periodic duties: reliable retransmits, ack
// reporting, and keepalive. Call it once per frame.
func (c *Client) Tick(now time.Time) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.retransmit(now); err != nil {
		return err
	}
	if latest, bits := c.tracker.AckField(); bits != 0 || latest != 0 {
		if err := c.send(wire.Ack{Ack: latest, Bits: bits}, now); err != nil {
			return err
		}
	}
	if now.Sub(c.lastSent) >= c.opts.KeepaliveInterval {
		return c.send(wire.Keepalive{}, now)
	}
	return nil
}

// Close ends the session. The Disconnect notice is sent best effort;
// the endpoint stays open for the owner to close.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	var err error
	if c.connected {
		err = c.send(wire.Disconnect{Peer: uint32(c.peer), Reason: "client closed"}, time.Now())
	}
	c.closed = true
	c.connected = false
	return err
}

// send encodes and transmits one packet, tracking it for
// retransmission when the kind demands delivery.
func (c *Client) send(p wire.Payload, now time.Time) error {
	seq := c.enum.Next()
	b, err := wire.Encode(seq, p)
	if err != nil {
		return err
	}
	if err := c.ep.Send(c.addr, b); err != nil {
		return err
	}
	if p.Kind().Reliable() || isReliableRPC(p) {
		c.rq.Track(seq, b, now)
	}
	c.lastSent = now
	return nil
}

func (c *Client) retransmit(now time.Time) error {
	due, err := c.rq.Due(now, c.opts.RetryTimeout)
	for _, rt := range due {
		if sendErr := c.ep.Send(c.addr, rt.Payload); sendErr != nil {
			return sendErr
		}
	}
	if err != nil {
		c.closed = true
		c.connected = false
		c.log.Warn("server unreachable", "outstanding", c.rq.Outstanding())
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect("server unreachable")
		}
		return domain.ErrPeerUnreachable
	}
	return nil
}

func isReliableRPC(p wire.Payload) bool {
	r, ok := p.(wire.RPC)
	return ok && r.Reliable
}

func entityUpdate(e domain.Entity, now time.Time) wire.EntityUpdate {
	return wire.EntityUpdate{
		Entity:    uint64(e.ID),
		Owner:     uint32(e.Owner),
		Type:      uint8(e.Type),
		Flags:     e.Flags,
		Position:  e.Position,
		Rotation:  e.Rotation,
		Velocity:  e.Velocity,
		Timestamp: wire.Millis(now),
	}
}
