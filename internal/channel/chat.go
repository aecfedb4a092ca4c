package channel

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
)

// Chat defaults. A peer may send a short burst, then settles to the
// sustained rate; history keeps the most recent messages for late
// joiners.
const (
	ChatHistorySize  = 128
	chatRate         = rate.Limit(4)
	chatBurst        = 8
	limiterIdleEvict = 5 * time.Minute
)

// ChatMessage is one accepted chat line.
type ChatMessage struct {
	Sender domain.PeerID
	Text   string
	At     time.Time
}

type chatLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// ChatChannel validates, rate-limits, and records chat traffic. The
// server rebroadcasts accepted messages to everyone but the sender;
// rejected ones are dropped silently at the sender's expense.
type ChatChannel struct {
	mu       sync.Mutex
	limiters map[domain.PeerID]*chatLimiter
	history  [ChatHistorySize]ChatMessage
	count    int
	next     int
}

// NewChatChannel creates a chat channel.
func NewChatChannel() *ChatChannel {
	return &ChatChannel{limiters: make(map[domain.PeerID]*chatLimiter)}
}

// Accept validates an incoming chat packet from a peer. It returns the
// accepted message, or ErrRateLimited / ErrMalformedPacket when the
// message must be dropped.
func (c *ChatChannel) Accept(from domain.PeerID, msg wire.Chat, now time.Time) (ChatMessage, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || len(text) > wire.MaxChatLen || !utf8.ValidString(text) {
		return ChatMessage{}, domain.ErrMalformedPacket.WithDetails("invalid chat text")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[from]
	if !ok {
		l = &chatLimiter{lim: rate.NewLimiter(chatRate, chatBurst)}
		c.limiters[from] = l
	}
	l.seen = now
	if !l.lim.AllowN(now, 1) {
		return ChatMessage{}, domain.ErrRateLimited.WithDetails("chat flood")
	}

	m := ChatMessage{Sender: from, Text: text, At: now}
	c.history[c.next] = m
	c.next = (c.next + 1) % ChatHistorySize
	if c.count < ChatHistorySize {
		c.count++
	}
	return m, nil
}

// History returns the retained messages, oldest first.
func (c *ChatChannel) History() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatMessage, 0, c.count)
	start := c.next - c.count
	if start < 0 {
		start += ChatHistorySize
	}
	for i := 0; i < c.count; i++ {
		out = append(out, c.history[(start+i)%ChatHistorySize])
	}
	return out
}

// Forget drops a peer's limiter state, typically on disconnect, and
// opportunistically evicts limiters idle past the eviction window.
func (c *ChatChannel) Forget(id domain.PeerID, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.limiters, id)
	for peer, l := range c.limiters {
		if now.Sub(l.seen) > limiterIdleEvict {
			delete(c.limiters, peer)
		}
	}
}
