package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/canwire/mcan/can"
	"github.com/canwire/mcan/internal/hub"
	"github.com/canwire/mcan/internal/metrics"
	"github.com/canwire/mcan/internal/wire"
)

const helloMagic = "CANWIREv1"

// frameCapture collects backend sends for verification.
type frameCapture struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (fc *frameCapture) send(fr can.Frame) error {
	fc.mu.Lock()
	fc.frames = append(fc.frames, fr)
	fc.mu.Unlock()
	return nil
}

func (fc *frameCapture) count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.frames)
}

func (fc *frameCapture) first() can.Frame {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.frames[0]
}

// TestSmokeServer starts the TCP server on an ephemeral port, handshakes and
// exercises both directions of the bridge.
func TestSmokeServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	capture := &frameCapture{}
	h := hub.New()
	srv := NewServer(
		WithHub(h),
		WithCodec(&wire.Codec{}),
		WithSend(capture.send),
		WithHandshakeTimeout(2*time.Second),
	)
	srv.SetListenAddr(":0")
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatalf("server did not signal readiness")
	}

	conn := dialAndHandshake(t, ctx, srv.Addr())
	defer conn.Close()

	// --- Client -> Server path (encode one frame) ---
	want := can.Frame{ID: 0x123, Len: 3, Data: [8]byte{1, 2, 3}}
	payload := (&wire.Codec{}).Encode([]can.Frame{want})
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && capture.count() == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	if capture.count() != 1 || capture.first() != want {
		t.Fatalf("backend capture mismatch: %+v", capture.frames)
	}

	// --- Server -> Client broadcast path ---
	srv.Hub.Broadcast(can.Frame{ID: 0x456, Len: 2, Data: [8]byte{9, 8}})
	rb := make([]byte, 64)
	var n int
	readDeadline := time.Now().Add(300 * time.Millisecond)
	_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	for time.Now().Before(readDeadline) && n < 5 {
		m, err := conn.Read(rb[n:])
		if err != nil {
			if isTimeout(err) {
				_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
				continue
			}
			t.Fatalf("read broadcast: %v", err)
		}
		n += m
	}
	if n < 5 {
		t.Fatalf("expected >=5 bytes of broadcast, got %d", n)
	}
	if gotID := binary.BigEndian.Uint32(rb[:4]); gotID != 0x456 {
		t.Fatalf("broadcast frame id mismatch got 0x%X", gotID)
	}
}

// TestSmokeBackpressureKick ensures a slow client gets closed when
// policy=kick and its buffer overflows.
func TestSmokeBackpressureKick(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := hub.New()
	h.OutBufSize = 1
	h.Policy = hub.PolicyKick
	capture := &frameCapture{}
	srv := NewServer(WithHub(h), WithCodec(&wire.Codec{}), WithSend(capture.send))
	go srv.Serve(ctx)
	<-srv.Ready()
	c1 := dialAndHandshake(t, ctx, srv.Addr())
	defer c1.Close()

	// Avoid reading from c1 to simulate slowness.
	for i := 0; i < 10; i++ {
		srv.Hub.Broadcast(can.Frame{ID: 0x200})
		time.Sleep(2 * time.Millisecond)
	}
	_ = c1.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 16)
	if _, err := c1.Read(buf); err == nil {
		t.Logf("kick policy: client not yet closed (data received)")
	}
}

// TestFrameFilter ensures frames failing the predicate are dropped before
// reaching the backend.
func TestFrameFilter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	capture := &frameCapture{}
	srv := NewServer(
		WithHub(hub.New()),
		WithCodec(&wire.Codec{}),
		WithSend(capture.send),
		WithFrameFilter(func(fr *can.Frame) bool { return fr.ID%2 == 0 }),
	)
	go srv.Serve(ctx)
	<-srv.Ready()
	c := dialAndHandshake(t, ctx, srv.Addr())
	defer c.Close()

	var frames []can.Frame
	for i := 0; i < 4; i++ {
		frames = append(frames, can.Frame{ID: 0x100 + uint32(i)})
	}
	if _, err := c.Write((&wire.Codec{}).Encode(frames)); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && capture.count() < 2 {
		time.Sleep(3 * time.Millisecond)
	}
	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.frames) != 2 {
		t.Fatalf("expected 2 backend frames (even ids), got %d", len(capture.frames))
	}
	for _, fr := range capture.frames {
		if fr.ID%2 != 0 {
			t.Fatalf("backend received odd id 0x%X", fr.ID)
		}
	}
}

// TestSmokeMalformedFrame sends an invalid length to trigger a decode error
// and connection closure.
func TestSmokeMalformedFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	capture := &frameCapture{}
	srv := NewServer(WithHub(hub.New()), WithCodec(&wire.Codec{}), WithSend(capture.send))
	go srv.Serve(ctx)
	<-srv.Ready()
	c := dialAndHandshake(t, ctx, srv.Addr())
	defer c.Close()
	pre := metrics.Snap()

	var idb [4]byte
	binary.BigEndian.PutUint32(idb[:], 0x111)
	bad := append(idb[:], byte(9)) // length 9 > 8
	if _, err := c.Write(bad); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && metrics.Snap().Errors <= pre.Errors {
		time.Sleep(2 * time.Millisecond)
	}
	if post := metrics.Snap(); post.Errors <= pre.Errors {
		t.Fatalf("expected error counter increment (pre=%d post=%d)", pre.Errors, post.Errors)
	}
	_ = c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := c.Read(make([]byte, 8)); err == nil {
		t.Fatalf("expected connection closed after malformed frame")
	}
}

// TestGracefulShutdown ensures Shutdown closes the listener and active clients.
func TestGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	h := hub.New()
	capture := &frameCapture{}
	srv := NewServer(WithHub(h), WithCodec(&wire.Codec{}), WithSend(capture.send))
	go srv.Serve(ctx)
	<-srv.Ready()
	c1 := dialAndHandshake(t, ctx, srv.Addr())
	c2 := dialAndHandshake(t, ctx, srv.Addr())
	wait := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(wait) && h.Count() < 2 {
		time.Sleep(2 * time.Millisecond)
	}
	sdCtx, sdCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer sdCancel()
	if err := srv.Shutdown(sdCtx); err != nil {
		t.Fatalf("shutdown err: %v", err)
	}
	buf := make([]byte, 8)
	_ = c1.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := c1.Read(buf); err == nil {
		t.Fatalf("expected c1 read to fail after shutdown")
	}
	_ = c2.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := c2.Read(buf); err == nil {
		t.Fatalf("expected c2 read to fail after shutdown")
	}
}

// --- Helpers ---

func dialAndHandshake(t *testing.T, ctx context.Context, addr string) net.Conn {
	t.Helper()
	d := net.Dialer{Timeout: 1 * time.Second}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := c.Write([]byte(helloMagic)); err != nil {
		t.Fatalf("write magic: %v", err)
	}
	buf := make([]byte, len(helloMagic))
	if _, err := c.Read(buf); err != nil {
		t.Fatalf("read magic: %v", err)
	}
	if !bytes.Equal(buf, []byte(helloMagic)) {
		t.Fatalf("unexpected handshake magic %q", buf)
	}
	return c
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
