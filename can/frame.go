// Package can holds the frame data model shared by the driver, the
// simulator and the bridge daemon.
package can

import (
	"errors"
	"fmt"
)

// Identifier spaces and raw-ID flag bits. The flag bits match the
// SocketCAN can_id layout so frames can cross a raw CAN socket or the
// TCP wire codec without translation.
const (
	MaxDataLen = 8

	IDStdMask = 0x7FF
	IDExtMask = 0x1FFFFFFF

	RawEFFFlag = 0x80000000
	RawRTRFlag = 0x40000000
	RawERRFlag = 0x20000000
)

var (
	// ErrInvalidID is returned when an identifier exceeds its addressing space.
	ErrInvalidID = errors.New("can: identifier out of range")
	// ErrInvalidLength is returned when a payload length is outside 0..8.
	ErrInvalidLength = errors.New("can: invalid length")
)

// Frame is one classic CAN frame. ID is 11 bits when Extended is false and
// 29 bits when it is true. RTR frames carry no payload; Len is then only a
// length hint. Only the first Len bytes of Data are valid.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	Len      uint8
	Data     [MaxDataLen]byte
}

// Validate checks identifier range and payload length.
func (f Frame) Validate() error {
	mask := uint32(IDStdMask)
	if f.Extended {
		mask = IDExtMask
	}
	if f.ID&^mask != 0 {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	if f.Len > MaxDataLen {
		return fmt.Errorf("%w: %d", ErrInvalidLength, f.Len)
	}
	return nil
}

// RawID folds the Extended and RTR flags into the identifier word
// (SocketCAN can_id layout).
func (f Frame) RawID() uint32 {
	raw := f.ID
	if f.Extended {
		raw = (raw & IDExtMask) | RawEFFFlag
	} else {
		raw &= IDStdMask
	}
	if f.RTR {
		raw |= RawRTRFlag
	}
	return raw
}

// FromRaw builds a frame from a raw identifier word and payload.
// Bytes beyond length are ignored; length is clamped to 8.
func FromRaw(raw uint32, length uint8, data []byte) Frame {
	var f Frame
	f.Extended = raw&RawEFFFlag != 0
	f.RTR = raw&RawRTRFlag != 0
	if f.Extended {
		f.ID = raw & IDExtMask
	} else {
		f.ID = raw & IDStdMask
	}
	if length > MaxDataLen {
		length = MaxDataLen
	}
	f.Len = length
	if !f.RTR {
		copy(f.Data[:], data[:min(int(length), len(data))])
	}
	return f
}
