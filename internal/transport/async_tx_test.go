package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canwire/mcan/can"
)

func TestAsyncTx_DeliversInOrder(t *testing.T) {
	var got []uint32
	done := make(chan struct{})
	send := func(fr can.Frame) error {
		got = append(got, fr.ID)
		if len(got) == 3 {
			close(done)
		}
		return nil
	}
	a := NewAsyncTx(context.Background(), 8, send, Hooks{})
	defer a.Close()
	for _, id := range []uint32{1, 2, 3} {
		if err := a.SendFrame(can.Frame{ID: id}); err != nil {
			t.Fatalf("SendFrame: %v", err)
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frames not delivered")
	}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order: %v", got)
	}
}

func TestAsyncTx_OverflowInvokesOnDrop(t *testing.T) {
	errOver := errors.New("over")
	block := make(chan struct{})
	send := func(can.Frame) error { <-block; return nil }
	a := NewAsyncTx(context.Background(), 1, send, Hooks{
		OnDrop: func() error { return errOver },
	})
	defer func() { close(block); a.Close() }()

	// First frame occupies the worker, second fills the buffer; eventually
	// a send must report overflow.
	var sawDrop bool
	for i := 0; i < 10; i++ {
		if err := a.SendFrame(can.Frame{ID: uint32(i)}); errors.Is(err, errOver) {
			sawDrop = true
			break
		}
	}
	if !sawDrop {
		t.Fatal("no overflow reported with blocked worker")
	}
}

func TestAsyncTx_ErrorHook(t *testing.T) {
	sendErr := errors.New("device gone")
	hookCh := make(chan error, 1)
	a := NewAsyncTx(context.Background(), 4,
		func(can.Frame) error { return sendErr },
		Hooks{OnError: func(err error) { hookCh <- err }})
	defer a.Close()
	if err := a.SendFrame(can.Frame{ID: 1}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	select {
	case err := <-hookCh:
		if !errors.Is(err, sendErr) {
			t.Fatalf("hook got %v, want %v", err, sendErr)
		}
	case <-time.After(time.Second):
		t.Fatal("OnError hook not invoked")
	}
}

func TestAsyncTx_SendAfterClose(t *testing.T) {
	a := NewAsyncTx(context.Background(), 1, func(can.Frame) error { return nil }, Hooks{})
	a.Close()
	if err := a.SendFrame(can.Frame{ID: 1}); !errors.Is(err, ErrAsyncTxClosed) {
		t.Fatalf("got %v, want ErrAsyncTxClosed", err)
	}
	a.Close() // idempotent
}
