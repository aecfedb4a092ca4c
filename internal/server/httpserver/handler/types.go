package handler

import (
	"sort"
	"time"

	"github.com/unknownsaying/meshsync/internal/channel"
	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// Response is the envelope every JSON endpoint uses.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse wraps data in a success envelope.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "ok",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse wraps an error message in the envelope.
func NewErrorResponse(requestID, message string) *Response {
	return &Response{
		Code:      "error",
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// PeerInfo is the wire shape of one peer session. The session token
// never leaves the server.
type PeerInfo struct {
	ID          uint32    `json:"id"`
	Name        string    `json:"name"`
	Addr        string    `json:"addr"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	RTTMillis   int64     `json:"rtt_ms"`
	Owned       []uint64  `json:"owned,omitempty"`
}

func peerInfo(p domain.Peer) PeerInfo {
	info := PeerInfo{
		ID:          uint32(p.ID),
		Name:        p.Name,
		State:       p.State.String(),
		ConnectedAt: p.ConnectedAt,
		LastSeen:    p.LastSeen,
		RTTMillis:   p.RTT.Milliseconds(),
	}
	if p.Addr != nil {
		info.Addr = p.Addr.String()
	}
	for id := range p.Owned {
		info.Owned = append(info.Owned, uint64(id))
	}
	sort.Slice(info.Owned, func(i, j int) bool { return info.Owned[i] < info.Owned[j] })
	return info
}

// EntityInfo is the wire shape of one tracked entity.
type EntityInfo struct {
	ID        uint64     `json:"id"`
	Owner     uint32     `json:"owner"`
	Type      string     `json:"type"`
	Position  [3]float32 `json:"position"`
	Rotation  [4]float32 `json:"rotation"`
	Velocity  [3]float32 `json:"velocity"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func entityInfo(e domain.Entity) EntityInfo {
	return EntityInfo{
		ID:        uint64(e.ID),
		Owner:     uint32(e.Owner),
		Type:      e.Type.String(),
		Position:  [3]float32{e.Position.X, e.Position.Y, e.Position.Z},
		Rotation:  [4]float32{e.Rotation.W, e.Rotation.X, e.Rotation.Y, e.Rotation.Z},
		Velocity:  [3]float32{e.Velocity.X, e.Velocity.Y, e.Velocity.Z},
		UpdatedAt: e.UpdatedAt,
	}
}

// ChatEntry is one retained chat message.
type ChatEntry struct {
	Sender uint32    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

func chatEntry(m channel.ChatMessage) ChatEntry {
	return ChatEntry{Sender: uint32(m.Sender), Text: m.Text, At: m.At}
}

// StatusSummary is the response of GET /api/v1/status.
type StatusSummary struct {
	Peers    int `json:"peers"`
	Entities int `json:"entities"`
}

// KickRequest is the body of POST /api/v1/peers/{id}/kick.
type KickRequest struct {
	Reason string `json:"reason"`
}
