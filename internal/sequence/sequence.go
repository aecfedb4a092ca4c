package sequence

import "sync"

// Diff returns the signed distance from b to a on the 16-bit sequence
// circle. Positive means a is newer than b, even across the 65535->0
// wrap.
func Diff(a, b uint16) int16 {
	return int16(a - b)
}

// After reports whether sequence a is newer than b.
func After(a, b uint16) bool {
	return Diff(a, b) > 0
}

// Enumerator hands out outgoing sequence numbers for one peer. It has
// its own mutex so send paths never contend with table locks.
type Enumerator struct {
	mu   sync.Mutex
	next uint16
}

// Next returns the next outgoing sequence number.
func (e *Enumerator) Next() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.next
	e.next++
	return s
}

// Peek returns the sequence number Next will hand out, for tests and
// diagnostics.
func (e *Enumerator) Peek() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next
}

// EWMA weights for the packet-loss rate: 90% history, 10% newest
// observation.
const (
	lossDecay  = 0.9
	lossWeight = 0.1
)

// Verdict classifies one received sequence number.
type Verdict uint8

const (
	// VerdictInOrder is the expected next sequence.
	VerdictInOrder Verdict = iota
	// VerdictAhead means the sequence skipped ahead; the gap is
	// counted as lost packets.
	VerdictAhead
	// VerdictDuplicate is an old or repeated sequence; the packet
	// must be dropped and is not counted as loss.
	VerdictDuplicate
)

// Tracker follows the inbound sequence stream from one peer: latest
// sequence seen, a received bitfield over the 32 sequences before it,
// and loss statistics. Loss is a statistic only; unreliable channels
// never retransmit.
type Tracker struct {
	mu sync.Mutex

	started bool
	latest  uint16
	// bits marks receipt of latest-1 .. latest-32, newest in bit 0.
	bits uint32

	received   uint64
	duplicates uint64
	lost       uint64
	lossRate   float64
}

// Observe records an incoming sequence number and classifies it.
// gap is the number of packets newly presumed lost (VerdictAhead only).
func (t *Tracker) Observe(seq uint16) (v Verdict, gap int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.started = true
		t.latest = seq
		t.received++
		t.observeLoss(0)
		return VerdictInOrder, 0
	}

	d := Diff(seq, t.latest)
	switch {
	case d > 0:
		// Shift the window forward; everything skipped is lost.
		if d >= 32 {
			t.bits = 0
		} else {
			t.bits = t.bits<<uint(d) | 1<<uint(d-1)
		}
		t.latest = seq
		t.received++
		gap = int(d) - 1
		t.lost += uint64(gap)
		t.observeLoss(gap)
		if gap > 0 {
			return VerdictAhead, gap
		}
		return VerdictInOrder, 0

	case d == 0:
		t.duplicates++
		return VerdictDuplicate, 0

	default:
		// Old sequence. Mark it received if it falls inside the ack
		// window; repeat arrivals within the window are duplicates.
		back := uint(-d)
		if back <= 32 {
			mask := uint32(1) << (back - 1)
			if t.bits&mask != 0 {
				t.duplicates++
				return VerdictDuplicate, 0
			}
			t.bits |= mask
			t.received++
			// A late arrival means one presumed-lost packet showed up.
			if t.lost > 0 {
				t.lost--
			}
			return VerdictDuplicate, 0
		}
		t.duplicates++
		return VerdictDuplicate, 0
	}
}

// observeLoss folds an instantaneous gap observation into the EWMA.
// Caller holds the lock.
func (t *Tracker) observeLoss(gap int) {
	instant := float64(gap) / float64(gap+1)
	t.lossRate = lossDecay*t.lossRate + lossWeight*instant
}

// AckField returns the acknowledgment pair to send back: the latest
// sequence received and the bitfield over the 32 before it.
func (t *Tracker) AckField() (latest uint16, bits uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.bits
}

// Stats is a point-in-time copy of the tracker's counters.
type Stats struct {
	Received   uint64
	Duplicates uint64
	Lost       uint64
	LossRate   float64
}

// Stats returns the tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Received:   t.received,
		Duplicates: t.duplicates,
		Lost:       t.lost,
		LossRate:   t.lossRate,
	}
}
