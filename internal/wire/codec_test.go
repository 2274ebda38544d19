package wire

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/canwire/mcan/can"
)

func mkFrame(id uint32, n int) can.Frame {
	var f can.Frame
	f.ID = id & can.IDExtMask
	f.Extended = true
	if n < 0 {
		n = 0
	}
	if n > can.MaxDataLen {
		n = can.MaxDataLen
	}
	f.Len = uint8(n)
	rand.Read(f.Data[:n])
	return f
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := Codec{}
	in := []can.Frame{
		mkFrame(0x1E5A, 8),
		mkFrame(0x1F55, 6),
		mkFrame(0x12345, 0),
		{ID: 0x123, Len: 2, Data: [8]byte{0xAA, 0xBB}},
		{ID: 0x456, RTR: true, Len: 4},
	}

	buf := codec.Encode(in)
	var out []can.Frame
	br := bytes.NewReader(buf)
	n, err := codec.DecodeN(br, 0, func(f can.Frame) { out = append(out, f) })
	if err != io.EOF && err != nil { // expect EOF at clean end
		t.Fatalf("DecodeN unexpected err: %v", err)
	}
	if n != len(in) {
		t.Fatalf("decoded %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("frame %d mismatch: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestCodec_EncodeToMatchesEncode(t *testing.T) {
	codec := Codec{}
	frames := []can.Frame{mkFrame(0x10, 8), mkFrame(0x11, 3), {ID: 0x20, RTR: true, Len: 1}}
	a := codec.Encode(frames)
	var buf bytes.Buffer
	n, err := codec.EncodeTo(&buf, frames)
	if err != nil {
		t.Fatalf("EncodeTo error: %v", err)
	}
	if n != len(a) {
		t.Fatalf("EncodeTo wrote %d bytes, Encode produced %d", n, len(a))
	}
	if !bytes.Equal(a, buf.Bytes()) {
		t.Fatalf("Encode vs EncodeTo mismatch\nenc=% X\nencTo=% X", a, buf.Bytes())
	}
}

func TestCodec_RemoteFrameCarriesNoPayload(t *testing.T) {
	codec := Codec{}
	rtr := can.Frame{ID: 0x7FF, RTR: true, Len: 8}
	buf := codec.Encode([]can.Frame{rtr})
	if len(buf) != 4+1 {
		t.Fatalf("rtr frame is %d bytes on the wire, want 5", len(buf))
	}
	got, err := codec.Decode(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != rtr {
		t.Fatalf("got %+v, want %+v", got, rtr)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := Codec{}

	// Length beyond 8 (high bit is reserved and masked off first).
	var bad bytes.Buffer
	bad.Write([]byte{0, 0, 0, 1})
	bad.WriteByte(0x89) // masked to 9
	if _, err := codec.Decode(&bad); err == nil {
		t.Fatal("expected error for invalid length")
	}

	// Payload shorter than declared.
	var trunc bytes.Buffer
	trunc.Write([]byte{0, 0, 0, 2})
	trunc.WriteByte(4)
	trunc.Write([]byte{1, 2})
	if _, err := codec.Decode(&trunc); err == nil {
		t.Fatal("expected error for truncated payload")
	}

	// Clean EOF at a frame boundary.
	if _, err := codec.Decode(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("empty input: got %v, want io.EOF", err)
	}
}
