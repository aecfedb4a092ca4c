package sequence

import (
	"errors"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

func TestDiffWrapAround(t *testing.T) {
	tests := []struct {
		name string
		a, b uint16
		want int16
	}{
		{"adjacent", 6, 5, 1},
		{"behind", 5, 6, -1},
		{"across wrap", 5, 65530, 11},
		{"across wrap backwards", 65530, 5, -11},
		{"equal", 100, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Diff(tt.a, tt.b); got != tt.want {
				t.Errorf("Diff(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	// 5 comes after 65530: a gap of 11, not a regression.
	if !After(5, 65530) {
		t.Error("After(5, 65530) = false, want true")
	}
	if After(65530, 5) {
		t.Error("After(65530, 5) = true, want false")
	}
}

func TestEnumeratorWraps(t *testing.T) {
	var e Enumerator
	e.next = 65534

	want := []uint16{65534, 65535, 0, 1}
	for _, w := range want {
		if got := e.Next(); got != w {
			t.Errorf("Next() = %d, want %d", got, w)
		}
	}
}

func TestTrackerGapCountsLoss(t *testing.T) {
	var tr Tracker

	// Sequences 1,2,4,5: one packet (3) lost.
	for _, seq := range []uint16{1, 2, 4, 5} {
		tr.Observe(seq)
	}

	s := tr.Stats()
	if s.Lost != 1 {
		t.Errorf("Lost = %d, want 1", s.Lost)
	}
	if s.Received != 4 {
		t.Errorf("Received = %d, want 4", s.Received)
	}
	if s.LossRate <= 0 {
		t.Errorf("LossRate = %v, want > 0", s.LossRate)
	}
}

func TestTrackerDuplicateNotLoss(t *testing.T) {
	var tr Tracker
	tr.Observe(1)
	tr.Observe(2)

	v, _ := tr.Observe(2)
	if v != VerdictDuplicate {
		t.Errorf("Observe(repeat) = %v, want duplicate", v)
	}
	v, _ = tr.Observe(1)
	if v != VerdictDuplicate {
		t.Errorf("Observe(old) = %v, want duplicate", v)
	}

	if s := tr.Stats(); s.Lost != 0 || s.Duplicates != 2 {
		t.Errorf("Stats = %+v, want 0 lost, 2 duplicates", s)
	}
}

func TestTrackerLateArrivalFillsGap(t *testing.T) {
	var tr Tracker
	tr.Observe(1)
	tr.Observe(3) // 2 presumed lost

	if s := tr.Stats(); s.Lost != 1 {
		t.Fatalf("Lost = %d, want 1 after gap", s.Lost)
	}

	tr.Observe(2) // shows up late
	if s := tr.Stats(); s.Lost != 0 {
		t.Errorf("Lost = %d, want 0 after late arrival", s.Lost)
	}
}

func TestTrackerAckFieldWindow(t *testing.T) {
	var tr Tracker
	tr.Observe(10)
	tr.Observe(11)
	tr.Observe(13)

	latest, bits := tr.AckField()
	if latest != 13 {
		t.Errorf("latest = %d, want 13", latest)
	}
	// 12 missing, 11 at distance 2, 10 at distance 3.
	if bits&(1<<0) != 0 {
		t.Error("bit for 12 should be clear")
	}
	if bits&(1<<1) == 0 || bits&(1<<2) == 0 {
		t.Errorf("bits for 11 and 10 should be set, got %032b", bits)
	}
}

func TestTrackerAcrossWrap(t *testing.T) {
	var tr Tracker
	tr.Observe(65530)
	v, gap := tr.Observe(5)
	if v != VerdictAhead || gap != 10 {
		t.Errorf("Observe(5 after 65530) = %v gap %d, want ahead gap 10", v, gap)
	}
}

func TestReliableQueueAck(t *testing.T) {
	q := NewReliableQueue(3)
	now := time.Now()

	for seq := uint16(1); seq <= 4; seq++ {
		q.Track(seq, []byte{byte(seq)}, now)
	}

	// Ack 4 directly and 2 via the bitfield (distance 2 -> bit 1).
	cleared := q.Ack(4, 1<<1)
	if len(cleared) != 2 {
		t.Fatalf("cleared %d packets, want 2", len(cleared))
	}
	if q.Outstanding() != 2 {
		t.Errorf("Outstanding() = %d, want 2", q.Outstanding())
	}
}

func TestReliableQueueRetransmitThenUnreachable(t *testing.T) {
	q := NewReliableQueue(2)
	start := time.Now()
	timeout := 100 * time.Millisecond

	q.Track(1, []byte("hello"), start)

	// Not due yet.
	due, err := q.Due(start.Add(50*time.Millisecond), timeout)
	if err != nil || len(due) != 0 {
		t.Fatalf("Due(early) = %v, %v, want none", due, err)
	}

	// Two retries within budget.
	for i := 1; i <= 2; i++ {
		due, err = q.Due(start.Add(time.Duration(i)*200*time.Millisecond), timeout)
		if err != nil {
			t.Fatalf("Due(retry %d) error = %v", i, err)
		}
		if len(due) != 1 || due[0].Retries != i {
			t.Fatalf("Due(retry %d) = %+v", i, due)
		}
	}

	// Third expiry exceeds the budget.
	_, err = q.Due(start.Add(time.Second), timeout)
	if !errors.Is(err, domain.ErrPeerUnreachable) {
		t.Fatalf("Due(exhausted) error = %v, want ErrPeerUnreachable", err)
	}
	if !q.Unreachable() {
		t.Error("queue should be unreachable")
	}

	// No further retransmission after the signal.
	due, err = q.Due(start.Add(2*time.Second), timeout)
	if err != nil || len(due) != 0 {
		t.Errorf("Due(after unreachable) = %v, %v, want silence", due, err)
	}
}

func TestReliableQueueAckedNeverRetries(t *testing.T) {
	q := NewReliableQueue(2)
	now := time.Now()
	q.Track(7, []byte("x"), now)
	q.Ack(7, 0)

	due, err := q.Due(now.Add(time.Hour), time.Millisecond)
	if err != nil || len(due) != 0 {
		t.Errorf("acked packet came due: %v, %v", due, err)
	}
}
