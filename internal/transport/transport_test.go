package transport

import (
	"errors"
	"testing"
	"time"
)

func TestLoopbackPairDelivery(t *testing.T) {
	a, b := LoopbackPair("a", "b")
	defer a.Close()
	defer b.Close()

	if err := a.Send(b.LocalAddr(), []byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 64)
	n, from, err := b.Receive(buf)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("got %q, want hello", buf[:n])
	}
	if from.String() != a.LocalAddr().String() {
		t.Errorf("from = %v, want %v", from, a.LocalAddr())
	}

	s := a.Stats()
	if s.PacketsSent != 1 || s.BytesSent != 5 {
		t.Errorf("sender stats = %+v", s)
	}
	if s := b.Stats(); s.PacketsReceived != 1 {
		t.Errorf("receiver stats = %+v", s)
	}
}

func TestLoopbackNoData(t *testing.T) {
	a, _ := LoopbackPair("a", "b")
	defer a.Close()

	buf := make([]byte, 16)
	if _, _, err := a.Receive(buf); !errors.Is(err, ErrNoData) {
		t.Errorf("Receive() error = %v, want ErrNoData", err)
	}
}

func TestLoopbackDropKnob(t *testing.T) {
	a, b := LoopbackPair("a", "b")
	defer a.Close()
	defer b.Close()

	a.DropSend.Store(1) // drop everything
	for i := 0; i < 5; i++ {
		if err := a.Send(b.LocalAddr(), []byte{byte(i)}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	buf := make([]byte, 16)
	if _, _, err := b.Receive(buf); !errors.Is(err, ErrNoData) {
		t.Errorf("Receive() after drop = %v, want ErrNoData", err)
	}
}

func TestLoopbackHubTopology(t *testing.T) {
	hub, spokes := LoopbackHub("server", "c1", "c2")
	defer hub.Close()

	// Spokes cannot reach each other directly.
	err := spokes[0].Send(spokes[1].LocalAddr(), []byte("x"))
	var te *TransmitError
	if !errors.As(err, &te) {
		t.Errorf("spoke-to-spoke Send() error = %v, want TransmitError", err)
	}

	// But both reach the hub.
	for i, s := range spokes {
		if err := s.Send(hub.LocalAddr(), []byte{byte(i)}); err != nil {
			t.Fatalf("spoke %d Send() error = %v", i, err)
		}
	}
	buf := make([]byte, 16)
	for i := 0; i < 2; i++ {
		if _, _, err := hub.Receive(buf); err != nil {
			t.Fatalf("hub Receive() %d error = %v", i, err)
		}
	}
}

func TestUDPEndpointRoundTrip(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ListenUDP(a) error = %v", err)
	}
	defer a.Close()
	b, err := ListenUDP("127.0.0.1:0", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ListenUDP(b) error = %v", err)
	}
	defer b.Close()

	if err := a.Send(b.LocalAddr(), []byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, from, err := b.Receive(buf)
		if errors.Is(err, ErrNoData) {
			if time.Now().After(deadline) {
				t.Fatal("datagram never arrived")
			}
			continue
		}
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if string(buf[:n]) != "ping" || from == nil {
			t.Errorf("got %q from %v", buf[:n], from)
		}
		break
	}
}

func TestUDPEndpointClosed(t *testing.T) {
	e, err := ListenUDP("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("second Close() = %v, want ErrEndpointClosed", err)
	}
	if err := e.Send(e.LocalAddr(), []byte("x")); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("Send() after close = %v, want ErrEndpointClosed", err)
	}
}
