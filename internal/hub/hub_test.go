package hub

import (
	"testing"
	"time"

	"github.com/canwire/mcan/can"
)

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := &Client{Out: make(chan can.Frame, 4), Closed: make(chan struct{})}
	h.Add(cl)
	defer h.Remove(cl)

	// Don't read from cl.Out to simulate slow client
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast(can.Frame{ID: 0x123})
	}
	elapsed := time.Since(start)
	if elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	// Buffer should be full
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := &Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	fast := &Client{Out: make(chan can.Frame, 16), Closed: make(chan struct{})}
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	// Fill slow buffer
	h.Broadcast(can.Frame{ID: 0x1})

	// Now send bursts that would drop on slow but must be delivered to fast
	for i := 0; i < 10; i++ {
		h.Broadcast(can.Frame{ID: 0x2})
	}

	got := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-fast.Out:
			got++
			if got == 11 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	if got != 11 {
		t.Fatalf("fast client got %d frames, want 11", got)
	}
}

func TestHub_KickPolicyClosesSlowClient(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	slow := &Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	h.Add(slow)
	defer h.Remove(slow)

	h.Broadcast(can.Frame{ID: 0x1}) // fills the buffer
	h.Broadcast(can.Frame{ID: 0x2}) // overflows: client gets kicked

	select {
	case <-slow.Closed:
	default:
		t.Fatal("slow client not closed under kick policy")
	}
}

func TestHub_RemoveIdempotent(t *testing.T) {
	h := New()
	cl := &Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	h.Add(cl)
	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}
	h.Remove(cl)
	h.Remove(cl) // must not panic or double-close
	if h.Count() != 0 {
		t.Fatalf("count = %d, want 0", h.Count())
	}
}
