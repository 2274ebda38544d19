package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/canwire/mcan/can"
	"github.com/canwire/mcan/internal/metrics"
)

// Codec encodes/decodes the TCP frame format. Stateless and safe for
// concurrent use. Each frame is a 4-byte big-endian raw identifier (EFF and
// RTR folded into the high bits, SocketCAN-style), one length byte and, for
// data frames, the payload.
type Codec struct{}

// ErrInvalidLength is returned when a frame length (DLC) is outside 0..8.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// Encode packs frames into a single buffer.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	// Pre-size: worst case per frame = 4(id)+1(len)+8(data)
	buf.Grow(len(frames) * (4 + 1 + 8))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes the wire representation of frames to w and returns bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	for _, f := range frames {
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], f.RawID())
		n, err := w.Write(id[:])
		total += n
		if err != nil {
			return total, fmt.Errorf("wire encode id: %w", err)
		}
		if _, err := w.Write([]byte{f.Len}); err != nil { // length byte
			total++ // conservative increment
			return total, fmt.Errorf("wire encode len: %w", err)
		}
		total++
		if !f.RTR {
			ln := int(f.Len & 0x7F)
			if ln > can.MaxDataLen {
				ln = can.MaxDataLen
			}
			if ln > 0 {
				n, err = w.Write(f.Data[:ln])
				total += n
				if err != nil {
					return total, fmt.Errorf("wire encode data: %w", err)
				}
			}
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r.
// It returns io.EOF if called at a clean frame boundary and no more data is available.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return can.Frame{}, err
	}
	raw := binary.BigEndian.Uint32(idb[:])
	var lb [1]byte
	n, err := r.Read(lb[:])
	if err != nil {
		return can.Frame{}, err
	}
	if n == 0 {
		return can.Frame{}, io.EOF
	}
	ln := int(lb[0] & 0x7F) // high bit reserved
	if ln > can.MaxDataLen {
		metrics.IncMalformed()
		return can.Frame{}, fmt.Errorf("wire decode: %w (%d)", ErrInvalidLength, ln)
	}
	var data [can.MaxDataLen]byte
	if raw&can.RawRTRFlag == 0 && ln > 0 {
		if _, err := io.ReadFull(r, data[:ln]); err != nil {
			metrics.IncMalformed()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return can.Frame{}, fmt.Errorf("wire decode payload: %w", ErrTruncatedFrame)
			}
			return can.Frame{}, fmt.Errorf("wire decode payload: %w", err)
		}
	}
	return can.FromRaw(raw, uint8(ln), data[:]), nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0) invoking onFrame for each.
// It returns the number of frames decoded and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
