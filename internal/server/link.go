package server

import (
	"net"
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/sequence"
)

// snapSeqWindow bounds how many in-flight snapshot sequence numbers a
// link remembers for baseline resolution.
const snapSeqWindow = 64

// link is the per-peer wire state: sequence counters, the inbound
// tracker, the reliable queue, and the snapshot baseline bookkeeping.
// The registry stays domain-pure; everything wire-shaped lives here.
type link struct {
	peer domain.PeerID
	addr net.Addr

	mu      sync.Mutex
	enum    sequence.Enumerator
	tracker sequence.Tracker
	rq      *sequence.ReliableQueue

	// snapSeqs maps outgoing packet sequence numbers to the snapshot
	// ids they carried; snapOrder evicts the oldest mapping once the
	// window fills.
	snapSeqs  map[uint16]uint32
	snapOrder []uint16

	// baseline is the newest snapshot id the peer has acknowledged.
	baseline uint32

	lastInputSeq uint32
	lastSent     time.Time
}

func newLink(peer domain.PeerID, addr net.Addr, maxRetries int, now time.Time) *link {
	return &link{
		peer:     peer,
		addr:     addr,
		rq:       sequence.NewReliableQueue(maxRetries),
		snapSeqs: make(map[uint16]uint32),
		lastSent: now,
	}
}

// observe runs the inbound sequence through the tracker.
func (l *link) observe(seq uint16) (sequence.Verdict, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.Observe(seq)
}

// ackField returns the current inbound acknowledgment field.
func (l *link) ackField() (uint16, uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.AckField()
}

// nextSeq allocates the next outgoing sequence number.
func (l *link) nextSeq() uint16 {
	return l.enum.Next()
}

// noteSnapshot records that outgoing seq carried snapshot id.
func (l *link) noteSnapshot(seq uint16, id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snapOrder) >= snapSeqWindow {
		oldest := l.snapOrder[0]
		l.snapOrder = l.snapOrder[1:]
		delete(l.snapSeqs, oldest)
	}
	l.snapSeqs[seq] = id
	l.snapOrder = append(l.snapOrder, seq)
}

// applyAck clears the reliable queue and advances the snapshot
// baseline to the newest snapshot the ack field covers.
func (l *link) applyAck(latest uint16, bits uint32) []uint16 {
	cleared := l.rq.Ack(latest, bits)

	l.mu.Lock()
	defer l.mu.Unlock()
	for seq, id := range l.snapSeqs {
		if !ackCovers(latest, bits, seq) {
			continue
		}
		if id > l.baseline {
			l.baseline = id
		}
		delete(l.snapSeqs, seq)
	}
	return cleared
}

// snapshotBaseline returns the peer's acknowledged baseline.
func (l *link) snapshotBaseline() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseline
}

// lossRate returns the tracker's smoothed inbound loss estimate.
func (l *link) lossRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.Stats().LossRate
}

// acceptInput enforces monotone input sequence numbers, dropping
// duplicates and reordered inputs.
func (l *link) acceptInput(seq uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq <= l.lastInputSeq {
		return false
	}
	l.lastInputSeq = seq
	return true
}

// ackCovers reports whether an ack field (latest plus a bitfield over
// the 32 sequences before it) acknowledges seq.
func ackCovers(latest uint16, bits uint32, seq uint16) bool {
	if seq == latest {
		return true
	}
	d := sequence.Diff(latest, seq)
	return d >= 1 && d <= 32 && bits&(1<<(d-1)) != 0
}
