package sequence

import (
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// DefaultMaxRetries is the retry budget before a peer is reported
// unreachable.
const DefaultMaxRetries = 5

// pending is one unacknowledged reliable packet.
type pending struct {
	seq     uint16
	payload []byte
	sentAt  time.Time
	retries int
}

// Retransmit is a payload the queue wants resent.
type Retransmit struct {
	Seq     uint16
	Payload []byte
	Retries int
}

// ReliableQueue tracks sent reliable packets until they are
// acknowledged. A packet that exhausts its retry budget marks the
// peer unreachable; the queue stops retransmitting and the session
// layer is expected to disconnect.
type ReliableQueue struct {
	mu          sync.Mutex
	entries     map[uint16]*pending
	maxRetries  int
	unreachable bool
}

// NewReliableQueue creates a queue with the given retry budget;
// budget <= 0 uses DefaultMaxRetries.
func NewReliableQueue(maxRetries int) *ReliableQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &ReliableQueue{
		entries:    make(map[uint16]*pending),
		maxRetries: maxRetries,
	}
}

// Track records a reliable packet that was just sent. The payload is
// retained as-is for retransmission; callers must not reuse the slice.
func (q *ReliableQueue) Track(seq uint16, payload []byte, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unreachable {
		return
	}
	q.entries[seq] = &pending{seq: seq, payload: payload, sentAt: now}
}

// Ack applies an acknowledgment field: latest acknowledged sequence
// plus the bitfield over the 32 sequences before it. It returns the
// sequences cleared by this ack.
func (q *ReliableQueue) Ack(latest uint16, bits uint32) []uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()

	var cleared []uint16
	if _, ok := q.entries[latest]; ok {
		delete(q.entries, latest)
		cleared = append(cleared, latest)
	}
	for back := uint16(1); back <= 32; back++ {
		if bits&(1<<(back-1)) == 0 {
			continue
		}
		seq := latest - back
		if _, ok := q.entries[seq]; ok {
			delete(q.entries, seq)
			cleared = append(cleared, seq)
		}
	}
	return cleared
}

// Due returns the packets whose retransmission timeout has elapsed
// and bumps their retry counts. When any packet exceeds the retry
// budget the queue reports domain.ErrPeerUnreachable exactly once and
// returns no further work.
func (q *ReliableQueue) Due(now time.Time, timeout time.Duration) ([]Retransmit, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unreachable {
		return nil, nil
	}

	var out []Retransmit
	for _, p := range q.entries {
		if now.Sub(p.sentAt) < timeout {
			continue
		}
		p.retries++
		if p.retries > q.maxRetries {
			q.unreachable = true
			q.entries = make(map[uint16]*pending)
			return nil, domain.ErrPeerUnreachable
		}
		p.sentAt = now
		out = append(out, Retransmit{Seq: p.seq, Payload: p.payload, Retries: p.retries})
	}
	return out, nil
}

// Unreachable reports whether the retry budget has been exhausted.
func (q *ReliableQueue) Unreachable() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unreachable
}

// Outstanding returns the number of unacknowledged packets.
func (q *ReliableQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
