package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

var be = binary.BigEndian

// ProtocolVersion is the current wire protocol version. Packets
// carrying any other version are dropped and counted, never parsed.
const ProtocolVersion uint8 = 1

// Packet size limits. MaxPacketSize stays under a conservative MTU so
// datagrams are never fragmented.
const (
	HeaderSize    = 4
	MaxPacketSize = 1400

	MaxRPCNameLen  = 64
	MaxRPCParamLen = 256
	MaxChatLen     = 256
	MaxVoiceLen    = 1200
	MaxReasonLen   = 128
)

// Kind tags a packet's payload type.
type Kind uint8

const (
	KindConnect Kind = iota
	KindDisconnect
	KindEntityUpdate
	KindEntityCreate
	KindEntityDestroy
	KindChat
	KindVoice
	KindSnapshot
	KindInput
	KindRPC
	KindPing
	KindPong
	KindAck
	KindKeepalive

	kindCount
)

var kindNames = [...]string{
	"connect", "disconnect", "entity_update", "entity_create",
	"entity_destroy", "chat", "voice", "snapshot", "input", "rpc",
	"ping", "pong", "ack", "keepalive",
}

// String returns the kind name for logs and metric labels.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known packet kind.
func (k Kind) Valid() bool { return k < kindCount }

// Reliable reports whether packets of this kind are delivered through
// the acknowledgment/retransmission path. RPC is reliable only when
// its payload asks for it, so it is not listed here.
func (k Kind) Reliable() bool {
	switch k {
	case KindConnect, KindDisconnect, KindEntityCreate, KindEntityDestroy:
		return true
	}
	return false
}

// Header is the fixed 4-byte packet prefix.
type Header struct {
	Version uint8
	Kind    Kind
	Seq     uint16
}

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, h.Version, uint8(h.Kind))
	return be.AppendUint16(dst, h.Seq)
}

// ParseHeader decodes the packet header. It returns
// domain.ErrVersionMismatch for foreign protocol versions and
// domain.ErrMalformedPacket for short or unknown-kind packets; in
// every error case the packet must be dropped.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, domain.ErrMalformedPacket.WithDetails("short header")
	}
	h := Header{
		Version: b[0],
		Kind:    Kind(b[1]),
		Seq:     be.Uint16(b[2:4]),
	}
	if h.Version != ProtocolVersion {
		return h, domain.ErrVersionMismatch.WithDetails(fmt.Sprintf("version %d", h.Version))
	}
	if !h.Kind.Valid() {
		return h, domain.ErrMalformedPacket.WithDetails(fmt.Sprintf("unknown kind %d", b[1]))
	}
	return h, nil
}

// Payload is the sum type over packet bodies. Encode produces the
// full datagram; Decode returns the matching concrete type.
type Payload interface {
	Kind() Kind
	append(dst []byte) []byte
}

// Encode builds a complete datagram: header plus payload.
func Encode(seq uint16, p Payload) ([]byte, error) {
	dst := make([]byte, 0, 64)
	dst = AppendHeader(dst, Header{Version: ProtocolVersion, Kind: p.Kind(), Seq: seq})
	dst = p.append(dst)
	if len(dst) > MaxPacketSize {
		return nil, domain.ErrPayloadTooLarge.WithDetails(
			fmt.Sprintf("%s packet is %d bytes", p.Kind(), len(dst)))
	}
	return dst, nil
}

// Decode parses a complete datagram into its header and typed
// payload. The switch is exhaustive over known kinds; ParseHeader has
// already rejected unknown ones.
func Decode(b []byte) (Header, Payload, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return h, nil, err
	}

	r := reader{b: b[HeaderSize:]}
	var p Payload
	switch h.Kind {
	case KindConnect:
		p = decodeConnect(&r)
	case KindDisconnect:
		p = decodeDisconnect(&r)
	case KindEntityUpdate:
		p = decodeEntityUpdate(&r)
	case KindEntityCreate:
		p = EntityCreate{decodeEntityUpdate(&r)}
	case KindEntityDestroy:
		p = decodeEntityDestroy(&r)
	case KindChat:
		p = decodeChat(&r)
	case KindVoice:
		p = decodeVoice(&r)
	case KindSnapshot:
		p = decodeSnapshot(&r)
	case KindInput:
		p = decodeInput(&r)
	case KindRPC:
		p = decodeRPC(&r)
	case KindPing:
		p = Ping{Timestamp: r.u32()}
	case KindPong:
		p = Pong{Echo: r.u32()}
	case KindAck:
		p = Ack{Ack: r.u16(), Bits: r.u32()}
	case KindKeepalive:
		p = Keepalive{}
	}
	if r.err != nil {
		return h, nil, fmt.Errorf("decode %s: %w", h.Kind, r.err)
	}
	return h, p, nil
}

// reader is a cursor over a payload. The first short read poisons it;
// callers check err once after all reads.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = domain.ErrMalformedPacket.WithDetails("truncated payload")
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return be.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return be.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return be.Uint64(b)
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) vec3() vmath.Vec3 {
	return vmath.Vec3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *reader) quat() vmath.Quat {
	return vmath.Quat{X: r.f32(), Y: r.f32(), Z: r.f32(), W: r.f32()}
}

// bytes8 reads a u8 length-prefixed byte string bounded by max.
func (r *reader) bytes8(max int) []byte {
	n := int(r.u8())
	if r.err == nil && n > max {
		r.err = domain.ErrMalformedPacket.WithDetails("length prefix out of bounds")
		return nil
	}
	return r.take(n)
}

// bytes16 reads a u16 length-prefixed byte string bounded by max.
func (r *reader) bytes16(max int) []byte {
	n := int(r.u16())
	if r.err == nil && n > max {
		r.err = domain.ErrMalformedPacket.WithDetails("length prefix out of bounds")
		return nil
	}
	return r.take(n)
}

func appendF32(dst []byte, f float32) []byte {
	return be.AppendUint32(dst, math.Float32bits(f))
}

func appendVec3(dst []byte, v vmath.Vec3) []byte {
	dst = appendF32(dst, v.X)
	dst = appendF32(dst, v.Y)
	return appendF32(dst, v.Z)
}

func appendQuat(dst []byte, q vmath.Quat) []byte {
	dst = appendF32(dst, q.X)
	dst = appendF32(dst, q.Y)
	dst = appendF32(dst, q.Z)
	return appendF32(dst, q.W)
}
