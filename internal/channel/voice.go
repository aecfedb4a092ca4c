package channel

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// Voice flood control. 50 frames/s covers Opus at its shortest frame
// size (20ms) with headroom for jitter bursts.
const (
	voiceRate  = rate.Limit(50)
	voiceBurst = 25
)

type voiceLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// VoiceChannel validates and rate-limits voice frames. Frames are
// forwarded as-is; the server never decodes audio.
type VoiceChannel struct {
	mu       sync.Mutex
	limiters map[domain.PeerID]*voiceLimiter
}

// NewVoiceChannel creates a voice channel.
func NewVoiceChannel() *VoiceChannel {
	return &VoiceChannel{limiters: make(map[domain.PeerID]*voiceLimiter)}
}

// Accept validates an incoming voice frame from a peer. The sender id
// inside the frame is overwritten with the authenticated peer id so a
// client cannot speak as someone else.
func (v *VoiceChannel) Accept(from domain.PeerID, frame wire.Voice, now time.Time) (wire.Voice, error) {
	if frame.Codec > wire.CodecPCM {
		return wire.Voice{}, domain.ErrMalformedPacket.WithDetails(
			fmt.Sprintf("unknown voice codec %d", frame.Codec))
	}
	if frame.Channels == 0 || frame.Channels > 2 {
		return wire.Voice{}, domain.ErrMalformedPacket.WithDetails(
			fmt.Sprintf("voice channel count %d", frame.Channels))
	}
	if len(frame.Data) == 0 || len(frame.Data) > wire.MaxVoiceLen {
		return wire.Voice{}, domain.ErrMalformedPacket.WithDetails("voice frame size")
	}

	v.mu.Lock()
	l, ok := v.limiters[from]
	if !ok {
		l = &voiceLimiter{lim: rate.NewLimiter(voiceRate, voiceBurst)}
		v.limiters[from] = l
	}
	l.seen = now
	allowed := l.lim.AllowN(now, 1)
	v.mu.Unlock()

	if !allowed {
		// A dropped voice frame is the correct outcome under flood, not
		// a queued one.
		return wire.Voice{}, domain.ErrRateLimited.WithDetails("voice flood")
	}

	frame.Peer = uint32(from)
	return frame, nil
}

// Forget drops a peer's limiter state.
func (v *VoiceChannel) Forget(id domain.PeerID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.limiters, id)
}
