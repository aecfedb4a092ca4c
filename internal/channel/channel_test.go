package channel

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/wire"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDispatcherRoutesByName(t *testing.T) {
	d := NewDispatcher()
	var got []byte
	var from domain.PeerID
	err := d.Register("teleport", func(f domain.PeerID, params []byte) error {
		from, got = f, params
		return nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = d.Dispatch(7, wire.RPC{Name: "teleport", Params: []byte{1, 2}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if from != 7 || string(got) != "\x01\x02" {
		t.Errorf("handler saw from=%d params=%v, want 7 and [1 2]", from, got)
	}
}

func TestDispatcherUnknownName(t *testing.T) {
	d := NewDispatcher()
	if err := d.Dispatch(1, wire.RPC{Name: "nope"}); err == nil {
		t.Error("Dispatch of unknown name returned nil error")
	}
}

func TestDispatcherRejectsBadRegistrations(t *testing.T) {
	d := NewDispatcher()
	if err := d.Register("", func(domain.PeerID, []byte) error { return nil }); err == nil {
		t.Error("Register(\"\") did not error")
	}
	long := strings.Repeat("x", wire.MaxRPCNameLen+1)
	if err := d.Register(long, func(domain.PeerID, []byte) error { return nil }); err == nil {
		t.Error("Register of over-long name did not error")
	}
	if err := d.Register("ok", nil); err == nil {
		t.Error("Register of nil handler did not error")
	}
}

func TestChatAcceptTrimsAndRecords(t *testing.T) {
	c := NewChatChannel()
	m, err := c.Accept(3, wire.Chat{Text: "  hello  "}, t0)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if m.Text != "hello" || m.Sender != 3 {
		t.Errorf("message = %+v, want sender 3 text %q", m, "hello")
	}
	h := c.History()
	if len(h) != 1 || h[0].Text != "hello" {
		t.Errorf("History() = %v, want the accepted message", h)
	}
}

func TestChatRejectsInvalidText(t *testing.T) {
	c := NewChatChannel()
	for _, text := range []string{"", "   ", string([]byte{0xff, 0xfe})} {
		if _, err := c.Accept(1, wire.Chat{Text: text}, t0); !errors.Is(err, domain.ErrMalformedPacket) {
			t.Errorf("Accept(%q) err = %v, want ErrMalformedPacket", text, err)
		}
	}
}

func TestChatFloodControl(t *testing.T) {
	c := NewChatChannel()
	var limited bool
	for i := 0; i < 50; i++ {
		_, err := c.Accept(1, wire.Chat{Text: "spam"}, t0)
		if errors.Is(err, domain.ErrRateLimited) {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("50 instant messages never hit flood control")
	}

	// Another peer has its own budget.
	if _, err := c.Accept(2, wire.Chat{Text: "hi"}, t0); err != nil {
		t.Errorf("second peer rate limited by first peer's flood: %v", err)
	}
}

func TestChatHistoryRingWraps(t *testing.T) {
	c := NewChatChannel()
	now := t0
	for i := 0; i < ChatHistorySize+10; i++ {
		// Advance far enough that the limiter refills.
		now = now.Add(time.Second)
		if _, err := c.Accept(1, wire.Chat{Text: "m"}, now); err != nil {
			t.Fatalf("Accept #%d: %v", i, err)
		}
	}
	h := c.History()
	if len(h) != ChatHistorySize {
		t.Fatalf("History len = %d, want %d", len(h), ChatHistorySize)
	}
	if !h[0].At.Before(h[len(h)-1].At) {
		t.Error("history not ordered oldest first")
	}
}

func TestVoiceOverwritesSender(t *testing.T) {
	v := NewVoiceChannel()
	out, err := v.Accept(9, wire.Voice{
		Peer:     1234, // spoofed
		Codec:    wire.CodecOpus,
		Channels: 1,
		Data:     []byte{1},
	}, t0)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if out.Peer != 9 {
		t.Errorf("Peer = %d, want authenticated sender 9", out.Peer)
	}
}

func TestVoiceRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame wire.Voice
	}{
		{"unknown codec", wire.Voice{Codec: 99, Channels: 1, Data: []byte{1}}},
		{"zero channels", wire.Voice{Codec: wire.CodecOpus, Data: []byte{1}}},
		{"empty data", wire.Voice{Codec: wire.CodecOpus, Channels: 1}},
	}
	v := NewVoiceChannel()
	for _, tc := range cases {
		if _, err := v.Accept(1, tc.frame, t0); !errors.Is(err, domain.ErrMalformedPacket) {
			t.Errorf("%s: err = %v, want ErrMalformedPacket", tc.name, err)
		}
	}
}

func TestVoiceFloodDrops(t *testing.T) {
	v := NewVoiceChannel()
	frame := wire.Voice{Codec: wire.CodecOpus, Channels: 1, Data: []byte{1}}
	var limited bool
	for i := 0; i < 200; i++ {
		if _, err := v.Accept(1, frame, t0); errors.Is(err, domain.ErrRateLimited) {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("200 instant voice frames never hit flood control")
	}
}
