package wire

import (
	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// Connect is the session handshake. A client sends Peer = 0 with its
// display name and capability flags; the server's reply carries the
// assigned peer id.
type Connect struct {
	Peer uint32
	Name string
	Caps uint32
}

func (Connect) Kind() Kind { return KindConnect }

func (c Connect) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, c.Peer)
	dst = append(dst, uint8(len(c.Name)))
	dst = append(dst, c.Name...)
	return be.AppendUint32(dst, c.Caps)
}

func decodeConnect(r *reader) Connect {
	return Connect{
		Peer: r.u32(),
		Name: string(r.bytes8(domain.MaxNameLength)),
		Caps: r.u32(),
	}
}

// Disconnect announces the end of a session, in either direction.
type Disconnect struct {
	Peer   uint32
	Reason string
}

func (Disconnect) Kind() Kind { return KindDisconnect }

func (d Disconnect) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, d.Peer)
	dst = append(dst, uint8(len(d.Reason)))
	return append(dst, d.Reason...)
}

func decodeDisconnect(r *reader) Disconnect {
	return Disconnect{
		Peer:   r.u32(),
		Reason: string(r.bytes8(MaxReasonLen)),
	}
}

// EntityUpdate carries one entity's full state.
type EntityUpdate struct {
	Entity    uint64
	Owner     uint32
	Type      uint8
	Flags     uint32
	Position  vmath.Vec3
	Rotation  vmath.Quat
	Velocity  vmath.Vec3
	Timestamp uint32
}

func (EntityUpdate) Kind() Kind { return KindEntityUpdate }

func (u EntityUpdate) append(dst []byte) []byte {
	dst = be.AppendUint64(dst, u.Entity)
	dst = be.AppendUint32(dst, u.Owner)
	dst = append(dst, u.Type)
	dst = be.AppendUint32(dst, u.Flags)
	dst = appendVec3(dst, u.Position)
	dst = appendQuat(dst, u.Rotation)
	dst = appendVec3(dst, u.Velocity)
	return be.AppendUint32(dst, u.Timestamp)
}

func decodeEntityUpdate(r *reader) EntityUpdate {
	return EntityUpdate{
		Entity:    r.u64(),
		Owner:     r.u32(),
		Type:      r.u8(),
		Flags:     r.u32(),
		Position:  r.vec3(),
		Rotation:  r.quat(),
		Velocity:  r.vec3(),
		Timestamp: r.u32(),
	}
}

// EntityCreate introduces a new entity. Same body as EntityUpdate,
// delivered reliably.
type EntityCreate struct {
	EntityUpdate
}

func (EntityCreate) Kind() Kind { return KindEntityCreate }

// EntityDestroy removes an entity from the world. Delivered reliably.
type EntityDestroy struct {
	Entity uint64
}

func (EntityDestroy) Kind() Kind { return KindEntityDestroy }

func (d EntityDestroy) append(dst []byte) []byte {
	return be.AppendUint64(dst, d.Entity)
}

func decodeEntityDestroy(r *reader) EntityDestroy {
	return EntityDestroy{Entity: r.u64()}
}

// Input is one tick of client input: the owned entity it drives, a
// monotonically increasing input sequence for reconciliation replay,
// button flags, and a movement axis vector.
type Input struct {
	Seq     uint32
	Entity  uint64
	Buttons uint32
	Move    vmath.Vec3
}

func (Input) Kind() Kind { return KindInput }

func (i Input) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, i.Seq)
	dst = be.AppendUint64(dst, i.Entity)
	dst = be.AppendUint32(dst, i.Buttons)
	return appendVec3(dst, i.Move)
}

func decodeInput(r *reader) Input {
	return Input{
		Seq:     r.u32(),
		Entity:  r.u64(),
		Buttons: r.u32(),
		Move:    r.vec3(),
	}
}

// RPC is a named remote call. Target 0 broadcasts to every peer;
// Reliable routes the packet through the retransmission path.
type RPC struct {
	Name     string
	Target   uint32
	Reliable bool
	Params   []byte
}

func (RPC) Kind() Kind { return KindRPC }

func (m RPC) append(dst []byte) []byte {
	dst = append(dst, uint8(len(m.Name)))
	dst = append(dst, m.Name...)
	dst = be.AppendUint32(dst, m.Target)
	var rel uint8
	if m.Reliable {
		rel = 1
	}
	dst = append(dst, rel)
	dst = be.AppendUint16(dst, uint16(len(m.Params)))
	return append(dst, m.Params...)
}

func decodeRPC(r *reader) RPC {
	return RPC{
		Name:     string(r.bytes8(MaxRPCNameLen)),
		Target:   r.u32(),
		Reliable: r.u8() != 0,
		Params:   append([]byte(nil), r.bytes16(MaxRPCParamLen)...),
	}
}

// Chat is an unreliable text message. The server rebroadcasts it to
// every connected peer except the sender.
type Chat struct {
	Sender uint32
	Text   string
}

func (Chat) Kind() Kind { return KindChat }

func (c Chat) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, c.Sender)
	dst = be.AppendUint16(dst, uint16(len(c.Text)))
	return append(dst, c.Text...)
}

func decodeChat(r *reader) Chat {
	return Chat{
		Sender: r.u32(),
		Text:   string(r.bytes16(MaxChatLen)),
	}
}

// Voice codec tags.
const (
	CodecOpus uint8 = iota
	CodecSpeex
	CodecPCM
)

// Voice is a frame of compressed audio. Always unreliable: a late
// voice frame is worthless, so under load these drop rather than
// queue.
type Voice struct {
	Peer       uint32
	Seq        uint16
	Timestamp  uint32
	Codec      uint8
	Channels   uint8
	SampleRate uint16
	Data       []byte
}

func (Voice) Kind() Kind { return KindVoice }

func (v Voice) append(dst []byte) []byte {
	dst = be.AppendUint32(dst, v.Peer)
	dst = be.AppendUint16(dst, v.Seq)
	dst = be.AppendUint32(dst, v.Timestamp)
	dst = append(dst, v.Codec, v.Channels)
	dst = be.AppendUint16(dst, v.SampleRate)
	dst = be.AppendUint16(dst, uint16(len(v.Data)))
	return append(dst, v.Data...)
}

func decodeVoice(r *reader) Voice {
	return Voice{
		Peer:       r.u32(),
		Seq:        r.u16(),
		Timestamp:  r.u32(),
		Codec:      r.u8(),
		Channels:   r.u8(),
		SampleRate: r.u16(),
		Data:       append([]byte(nil), r.bytes16(MaxVoiceLen)...),
	}
}

// Ping carries the sender's millisecond clock for round-trip
// estimation; Pong echoes it back untouched.
type Ping struct {
	Timestamp uint32
}

func (Ping) Kind() Kind { return KindPing }

func (p Ping) append(dst []byte) []byte {
	return be.AppendUint32(dst, p.Timestamp)
}

// Pong is the ping echo.
type Pong struct {
	Echo uint32
}

func (Pong) Kind() Kind { return KindPong }

func (p Pong) append(dst []byte) []byte {
	return be.AppendUint32(dst, p.Echo)
}

// Ack acknowledges reliable traffic: Ack is the highest sequence
// received, Bits marks receipt of the 32 sequences before it.
type Ack struct {
	Ack  uint16
	Bits uint32
}

func (Ack) Kind() Kind { return KindAck }

func (a Ack) append(dst []byte) []byte {
	dst = be.AppendUint16(dst, a.Ack)
	return be.AppendUint32(dst, a.Bits)
}

// Keepalive is an empty liveness probe.
type Keepalive struct{}

func (Keepalive) Kind() Kind { return KindKeepalive }

func (Keepalive) append(dst []byte) []byte { return dst }
