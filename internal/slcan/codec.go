// Package slcan speaks the Lawicel SLCAN ASCII framing used by serial CAN
// adapters: 't'/'T' data frames and 'r'/'R' remote frames, hex encoded,
// terminated by CR.
package slcan

import (
	"bytes"
	"fmt"

	"github.com/canwire/mcan/can"
	"github.com/canwire/mcan/internal/metrics"
)

type Codec struct{}

const (
	terminator = '\r'
	bell       = 0x07 // adapter error response, skipped silently

	stdIDDigits = 3
	extIDDigits = 8
)

const hexDigits = "0123456789ABCDEF"

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	// If buffer size < 1KB, skip.
	if len(data) < 1024 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// Encode renders one frame as an SLCAN command line.
//
// Examples:
//
//	t1238DEADBEEF01020304\r  standard data frame, id 0x123, 8 bytes
//	T1FFFFFFF0\r             extended data frame, zero length
//	r4562\r                  standard remote frame, dlc 2
func (Codec) Encode(f can.Frame) []byte {
	var cmd byte
	digits := stdIDDigits
	switch {
	case f.Extended && f.RTR:
		cmd = 'R'
		digits = extIDDigits
	case f.Extended:
		cmd = 'T'
		digits = extIDDigits
	case f.RTR:
		cmd = 'r'
	default:
		cmd = 't'
	}

	out := make([]byte, 0, 2+digits+1+2*can.MaxDataLen)
	out = append(out, cmd)
	for i := digits - 1; i >= 0; i-- {
		out = append(out, hexDigits[f.ID>>(4*i)&0xF])
	}
	out = append(out, hexDigits[f.Len&0xF])
	if !f.RTR {
		for _, b := range f.Data[:f.Len] {
			out = append(out, hexDigits[b>>4], hexDigits[b&0xF])
		}
	}
	return append(out, terminator)
}

// DecodeStream consumes complete CR-terminated lines from in and emits
// decoded frames via out. Incomplete trailing input stays buffered for the
// next call. Non-frame lines (command acks, version strings) are skipped;
// malformed frame lines are counted and dropped.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		data := in.Bytes()
		_ = CompactBuffer(in)
		end := bytes.IndexByte(data, terminator)
		if end < 0 {
			return nil
		}
		line := data[:end]
		in.Next(end + 1)

		if len(line) == 0 {
			continue // bare CR: positive command response
		}
		switch line[0] {
		case 't', 'T', 'r', 'R':
			f, err := parseLine(line)
			if err != nil {
				metrics.IncMalformed()
				continue
			}
			out(f)
			metrics.IncSlcanRx()
		case bell:
			// adapter NAK; nothing to deliver
		default:
			// status/version or noise; resync at next terminator
		}
	}
}

func parseLine(line []byte) (can.Frame, error) {
	var f can.Frame
	f.Extended = line[0] == 'T' || line[0] == 'R'
	f.RTR = line[0] == 'r' || line[0] == 'R'

	digits := stdIDDigits
	if f.Extended {
		digits = extIDDigits
	}
	if len(line) < 1+digits+1 {
		return f, fmt.Errorf("slcan: short line %q", line)
	}
	id, err := parseHex(line[1 : 1+digits])
	if err != nil {
		return f, err
	}
	mask := uint32(can.IDStdMask)
	if f.Extended {
		mask = can.IDExtMask
	}
	f.ID = id & mask

	dlc, err := parseHex(line[1+digits : 1+digits+1])
	if err != nil {
		return f, err
	}
	if dlc > can.MaxDataLen {
		return f, fmt.Errorf("slcan: dlc %d out of range", dlc)
	}
	f.Len = uint8(dlc)

	if f.RTR {
		if len(line) != 1+digits+1 {
			return f, fmt.Errorf("slcan: trailing bytes on remote frame %q", line)
		}
		return f, nil
	}
	if len(line) != 1+digits+1+2*int(dlc) {
		return f, fmt.Errorf("slcan: length mismatch %q", line)
	}
	for i := 0; i < int(dlc); i++ {
		b, err := parseHex(line[1+digits+1+2*i : 1+digits+1+2*i+2])
		if err != nil {
			return f, err
		}
		f.Data[i] = byte(b)
	}
	return f, nil
}

func parseHex(s []byte) (uint32, error) {
	var v uint32
	for _, c := range s {
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		default:
			return 0, fmt.Errorf("slcan: bad hex digit %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}
