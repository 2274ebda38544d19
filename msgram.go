package mcan

// Message RAM element layouts of the M_CAN peripheral. The region is owned
// by one Controller per channel and shared with the hardware side of the
// HAL; the concurrency rules live in the Controller, not here.

// Sizing of the message RAM. One transmit slot, an 8-deep receive FIFO and
// one acceptance filter per addressing class.
const (
	TxBufferCount = 1
	RxFIFODepth   = 8
	FilterCount   = 1
)

// Filter element configuration (SFEC/EFEC) values.
const (
	FilterDisabled    = 0x0
	FilterStoreFIFO0  = 0x1
	FilterReject      = 0x3
	FilterTypeClassic = 0x2 // SFT/EFT: id + mask
)

// Buffer element ID field bits (T0/R0). Standard identifiers occupy the
// high bits of the 29-bit field.
const (
	elemIDMask   = 0x1FFFFFFF
	elemStdShift = 18
	elemRTRBit   = 1 << 29
	elemXTDBit   = 1 << 30
	elemESIBit   = 1 << 31
)

// TxBufferElement is one transmit buffer slot (T0, T1, payload).
type TxBufferElement struct {
	T0   uint32
	T1   uint32
	Data [8]byte
}

// SetID writes the identifier; standard IDs are shifted into bits 28:18.
func (e *TxBufferElement) SetID(id uint32, extended bool) {
	if !extended {
		id <<= elemStdShift
	}
	e.T0 = e.T0&^uint32(elemIDMask) | id&elemIDMask
}

func (e *TxBufferElement) SetXTD(v bool) { e.T0 = setBit(e.T0, elemXTDBit, v) }
func (e *TxBufferElement) SetRTR(v bool) { e.T0 = setBit(e.T0, elemRTRBit, v) }
func (e *TxBufferElement) SetESI(v bool) { e.T0 = setBit(e.T0, elemESIBit, v) }

// SetDLC writes the data length code (T1 bits 19:16).
func (e *TxBufferElement) SetDLC(n uint8) {
	e.T1 = e.T1&^uint32(0xF<<16) | uint32(n&0xF)<<16
}

// SetMM writes the message marker (T1 bits 31:24).
func (e *TxBufferElement) SetMM(m uint8) {
	e.T1 = e.T1&^uint32(0xFF<<24) | uint32(m)<<24
}

// SetEFC sets the event FIFO control bit (T1 bit 23).
func (e *TxBufferElement) SetEFC(v bool) { e.T1 = setBit(e.T1, 1<<23, v) }

func (e *TxBufferElement) ID(extended bool) uint32 {
	id := e.T0 & elemIDMask
	if !extended {
		id >>= elemStdShift
	}
	return id
}
func (e *TxBufferElement) XTD() bool { return e.T0&elemXTDBit != 0 }
func (e *TxBufferElement) RTR() bool { return e.T0&elemRTRBit != 0 }
func (e *TxBufferElement) DLC() uint8 {
	return uint8(e.T1 >> 16 & 0xF)
}

// RxFIFOElement is one receive FIFO slot (R0, R1, payload).
type RxFIFOElement struct {
	R0   uint32
	R1   uint32
	Data [8]byte
}

func (e *RxFIFOElement) SetID(id uint32, extended bool) {
	if !extended {
		id <<= elemStdShift
	}
	e.R0 = e.R0&^uint32(elemIDMask) | id&elemIDMask
}

func (e *RxFIFOElement) SetXTD(v bool) { e.R0 = setBit(e.R0, elemXTDBit, v) }
func (e *RxFIFOElement) SetRTR(v bool) { e.R0 = setBit(e.R0, elemRTRBit, v) }

func (e *RxFIFOElement) SetDLC(n uint8) {
	e.R1 = e.R1&^uint32(0xF<<16) | uint32(n&0xF)<<16
}

// SetTimestamp writes the RX timestamp counter value (R1 bits 15:0).
func (e *RxFIFOElement) SetTimestamp(ts uint16) {
	e.R1 = e.R1&^uint32(0xFFFF) | uint32(ts)
}

// SetFilterIndex records which filter element accepted the frame (R1 bits 30:24).
func (e *RxFIFOElement) SetFilterIndex(idx uint8) {
	e.R1 = e.R1&^uint32(0x7F<<24) | uint32(idx&0x7F)<<24
}

func (e *RxFIFOElement) ID(extended bool) uint32 {
	id := e.R0 & elemIDMask
	if !extended {
		id >>= elemStdShift
	}
	return id
}
func (e *RxFIFOElement) XTD() bool       { return e.R0&elemXTDBit != 0 }
func (e *RxFIFOElement) RTR() bool       { return e.R0&elemRTRBit != 0 }
func (e *RxFIFOElement) DLC() uint8      { return uint8(e.R1 >> 16 & 0xF) }
func (e *RxFIFOElement) Timestamp() uint16 { return uint16(e.R1) }

// StandardFilterElement is one 11-bit acceptance filter slot (S0):
// SFID2 bits 10:0 (mask), SFID1 bits 26:16 (id), SFEC bits 29:27, SFT bits 31:30.
type StandardFilterElement struct {
	S0 uint32
}

func (e *StandardFilterElement) Set(id, mask uint32, config, filterType uint32) {
	e.S0 = filterType<<30 | config<<27 | (id&0x7FF)<<16 | mask&0x7FF
}

func (e *StandardFilterElement) ID() uint32     { return e.S0 >> 16 & 0x7FF }
func (e *StandardFilterElement) Mask() uint32   { return e.S0 & 0x7FF }
func (e *StandardFilterElement) Config() uint32 { return e.S0 >> 27 & 0x7 }
func (e *StandardFilterElement) Type() uint32   { return e.S0 >> 30 & 0x3 }

// ExtendedFilterElement is one 29-bit acceptance filter slot:
// F0 holds EFID1 bits 28:0 (id) and EFEC bits 31:29; F1 holds EFID2
// bits 28:0 (mask) and EFT bits 31:30.
type ExtendedFilterElement struct {
	F0 uint32
	F1 uint32
}

func (e *ExtendedFilterElement) Set(id, mask uint32, config, filterType uint32) {
	e.F0 = config<<29 | id&elemIDMask
	e.F1 = filterType<<30 | mask&elemIDMask
}

func (e *ExtendedFilterElement) ID() uint32     { return e.F0 & elemIDMask }
func (e *ExtendedFilterElement) Mask() uint32   { return e.F1 & elemIDMask }
func (e *ExtendedFilterElement) Config() uint32 { return e.F0 >> 29 & 0x7 }
func (e *ExtendedFilterElement) Type() uint32   { return e.F1 >> 30 & 0x3 }

// MessageRAM is the buffer and filter region shared between the Controller
// and the hardware side of the HAL. On silicon it is linker-placed; here it
// is an ordinary struct handed to the HAL via AttachMessageRAM, so a
// platform needing special placement can solve that in its allocator.
type MessageRAM struct {
	TxBuffer  [TxBufferCount]TxBufferElement
	RxFIFO    [RxFIFODepth]RxFIFOElement
	StdFilter [FilterCount]StandardFilterElement
	ExtFilter [FilterCount]ExtendedFilterElement
}

// Reset zeroes the whole region.
func (m *MessageRAM) Reset() { *m = MessageRAM{} }

func setBit(reg, bit uint32, v bool) uint32 {
	if v {
		return reg | bit
	}
	return reg &^ bit
}
