// Package sim emulates an M_CAN-style CAN channel behind the mcan hardware
// interfaces: the register configuration handshakes, the acceptance filters,
// the RX FIFO and the interrupt line. It backs the driver tests and the
// bridge daemon's sim backend, so interrupt-path behavior can be exercised
// without interrupt hardware.
package sim

import (
	"sync"

	"github.com/canwire/mcan"
	"github.com/canwire/mcan/can"
)

// Peripheral is one simulated CAN channel. It implements mcan.Registers,
// mcan.PinMux, mcan.ClockController and mcan.InterruptMask.
//
// Interrupt delivery: raising an interrupt calls the configured handler
// synchronously on the goroutine that triggered it, unless interrupts are
// masked, in which case delivery is deferred until the mask is lifted.
// That models asynchronous preemption closely enough to validate the
// driver's critical-section discipline.
type Peripheral struct {
	mu sync.Mutex

	ram *mcan.MessageRAM

	cccr  uint32
	test  uint32
	nbtp  uint32
	ie    uint32
	ir    uint32
	gfc   uint32
	txesc uint32
	txbc  uint32
	rxesc uint32
	rxf0c uint32
	sidfc uint32
	xidfc uint32
	txbto uint32

	fill, get, put int
	timestamp      uint16

	handler    func()
	irqEnabled bool
	irqPending bool

	partner *Peripheral

	pinFuncs map[mcan.Pin]string
	clockOn  bool
}

// New returns an idle peripheral with interrupts unmasked.
func New() *Peripheral {
	return &Peripheral{
		irqEnabled: true,
		pinFuncs:   make(map[mcan.Pin]string),
	}
}

// Connect wires two peripherals back to back: a frame transmitted by one
// (outside loopback mode) arrives at the other.
func Connect(a, b *Peripheral) {
	a.mu.Lock()
	a.partner = b
	a.mu.Unlock()
	b.mu.Lock()
	b.partner = a
	b.mu.Unlock()
}

// SetInterruptHandler installs the interrupt vector, typically a closure
// around mcan.ServiceInterrupt for the owning channel.
func (p *Peripheral) SetInterruptHandler(fn func()) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// --- mcan.Registers ---

func (p *Peripheral) AttachMessageRAM(ram *mcan.MessageRAM) {
	p.mu.Lock()
	p.ram = ram
	p.fill, p.get, p.put = 0, 0, 0
	p.mu.Unlock()
}

func (p *Peripheral) ReadCCCR() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cccr
}

// WriteCCCR models the INIT and clock-stop handshakes: INIT is acknowledged
// immediately, CSR is answered by CSA.
func (p *Peripheral) WriteCCCR(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v&mcan.CCCRCSR != 0 {
		v |= mcan.CCCRCSA
	} else {
		v &^= uint32(mcan.CCCRCSA)
	}
	p.cccr = v
}

func (p *Peripheral) WriteTEST(v uint32)  { p.mu.Lock(); p.test = v; p.mu.Unlock() }
func (p *Peripheral) WriteNBTP(v uint32)  { p.mu.Lock(); p.nbtp = v; p.mu.Unlock() }
func (p *Peripheral) WriteTXESC(v uint32) { p.mu.Lock(); p.txesc = v; p.mu.Unlock() }
func (p *Peripheral) WriteTXBC(v uint32)  { p.mu.Lock(); p.txbc = v; p.mu.Unlock() }
func (p *Peripheral) WriteRXESC(v uint32) { p.mu.Lock(); p.rxesc = v; p.mu.Unlock() }
func (p *Peripheral) WriteRXF0C(v uint32) { p.mu.Lock(); p.rxf0c = v; p.mu.Unlock() }
func (p *Peripheral) WriteGFC(v uint32)   { p.mu.Lock(); p.gfc = v; p.mu.Unlock() }
func (p *Peripheral) WriteSIDFC(v uint32) { p.mu.Lock(); p.sidfc = v; p.mu.Unlock() }
func (p *Peripheral) WriteXIDFC(v uint32) { p.mu.Lock(); p.xidfc = v; p.mu.Unlock() }

func (p *Peripheral) ReadRXF0S() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := uint32(p.fill)&mcan.RXF0SFillMask | uint32(p.get)<<mcan.RXF0SGetPos
	if p.fill == mcan.RxFIFODepth {
		s |= mcan.RXF0SFull
	}
	return s
}

// WriteRXF0A acknowledges the consumed FIFO slot, freeing it for reuse.
func (p *Peripheral) WriteRXF0A(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fill == 0 {
		return
	}
	p.fill--
	p.get = (p.get + 1) % mcan.RxFIFODepth
}

// WriteTXBAR starts transmission of the TX buffer. Completion is immediate;
// in monitor mode the request is swallowed and the completion indicator
// never sets.
func (p *Peripheral) WriteTXBAR(v uint32) {
	if v&1 == 0 {
		return
	}
	p.mu.Lock()
	p.txbto &^= 1
	if p.cccr&mcan.CCCRMon != 0 || p.ram == nil {
		p.mu.Unlock()
		return
	}
	el := p.ram.TxBuffer[0]
	xtd := el.XTD()
	fr := can.Frame{
		ID:       el.ID(xtd),
		Extended: xtd,
		RTR:      el.RTR(),
		Len:      el.DLC(),
	}
	if fr.Len > can.MaxDataLen {
		fr.Len = can.MaxDataLen
	}
	if !fr.RTR {
		copy(fr.Data[:], el.Data[:fr.Len])
	}
	p.txbto |= 1
	loop := p.cccr&mcan.CCCRTest != 0 && p.test&mcan.TestLBCK != 0
	partner := p.partner
	var fire bool
	if loop {
		fire = p.storeLocked(fr)
	}
	p.mu.Unlock()

	if fire {
		p.fireInterrupt()
	}
	if !loop && partner != nil {
		partner.Inject(fr)
	}
}

func (p *Peripheral) ReadTXBTO() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txbto
}

func (p *Peripheral) ReadIR() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ir
}

// WriteIR clears the written status bits (write-one-to-clear).
func (p *Peripheral) WriteIR(v uint32) {
	p.mu.Lock()
	p.ir &^= v
	p.mu.Unlock()
}

func (p *Peripheral) ReadIE() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ie
}

func (p *Peripheral) WriteIE(v uint32) {
	p.mu.Lock()
	p.ie = v
	fire := p.pendingLocked()
	p.mu.Unlock()
	if fire {
		p.fireInterrupt()
	}
}

// --- bus side ---

// Inject delivers a frame arriving from the external bus, subject to the
// programmed acceptance filters.
func (p *Peripheral) Inject(fr can.Frame) {
	p.mu.Lock()
	fire := p.storeLocked(fr)
	p.mu.Unlock()
	if fire {
		p.fireInterrupt()
	}
}

// storeLocked runs the acceptance filters and, on accept, pushes the frame
// into the RX FIFO. It reports whether the interrupt handler must run.
func (p *Peripheral) storeLocked(fr can.Frame) bool {
	if p.ram == nil || !p.acceptLocked(fr) {
		return false
	}
	if p.fill == mcan.RxFIFODepth {
		return p.raiseLocked(mcan.IRRxFIFO0Lost)
	}
	slot := &p.ram.RxFIFO[p.put]
	*slot = mcan.RxFIFOElement{}
	slot.SetID(fr.ID, fr.Extended)
	slot.SetXTD(fr.Extended)
	slot.SetRTR(fr.RTR)
	slot.SetDLC(fr.Len)
	slot.SetTimestamp(p.timestamp)
	slot.SetFilterIndex(0)
	if !fr.RTR {
		copy(slot.Data[:], fr.Data[:fr.Len])
	}
	p.timestamp++
	p.put = (p.put + 1) % mcan.RxFIFODepth
	p.fill++
	return p.raiseLocked(mcan.IRRxFIFO0New)
}

// acceptLocked evaluates the one-deep filter list for the frame's
// addressing class, falling back to the global reject disposition.
func (p *Peripheral) acceptLocked(fr can.Frame) bool {
	if fr.Extended {
		f := &p.ram.ExtFilter[0]
		if classicMatch(fr.ID, f.ID(), f.Mask()) {
			switch f.Config() {
			case mcan.FilterStoreFIFO0:
				return true
			case mcan.FilterReject:
				return false
			}
		}
	} else {
		f := &p.ram.StdFilter[0]
		if classicMatch(fr.ID, f.ID(), f.Mask()) {
			switch f.Config() {
			case mcan.FilterStoreFIFO0:
				return true
			case mcan.FilterReject:
				return false
			}
		}
	}
	// No filter matched; GFC is programmed to reject.
	return false
}

func classicMatch(id, fid, mask uint32) bool { return id&mask == fid&mask }

// raiseLocked latches a status bit and reports whether the handler should
// fire now. With interrupts masked the event stays pending until Enable.
func (p *Peripheral) raiseLocked(bits uint32) bool {
	p.ir |= bits
	return p.pendingLocked()
}

func (p *Peripheral) pendingLocked() bool {
	if p.ir&p.ie == 0 {
		return false
	}
	if !p.irqEnabled {
		p.irqPending = true
		return false
	}
	return true
}

func (p *Peripheral) fireInterrupt() {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

// --- mcan.InterruptMask ---

// Disable masks interrupt delivery and reports the prior state.
func (p *Peripheral) Disable() bool {
	p.mu.Lock()
	was := p.irqEnabled
	p.irqEnabled = false
	p.mu.Unlock()
	return was
}

// Enable unmasks interrupt delivery and flushes a deferred interrupt.
func (p *Peripheral) Enable() {
	p.mu.Lock()
	p.irqEnabled = true
	fire := p.irqPending
	p.irqPending = false
	p.mu.Unlock()
	if fire {
		p.fireInterrupt()
	}
}

// --- mcan.PinMux / mcan.ClockController ---

func (p *Peripheral) ConfigureCAN(pin mcan.Pin, channel int) error {
	p.mu.Lock()
	p.pinFuncs[pin] = "can"
	p.mu.Unlock()
	return nil
}

func (p *Peripheral) ConfigureInput(pin mcan.Pin) {
	p.mu.Lock()
	p.pinFuncs[pin] = "input"
	p.mu.Unlock()
}

// PinFunction reports the recorded function of a pin ("can", "input" or "").
func (p *Peripheral) PinFunction(pin mcan.Pin) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinFuncs[pin]
}

func (p *Peripheral) EnableClock(channel int)  { p.mu.Lock(); p.clockOn = true; p.mu.Unlock() }
func (p *Peripheral) DisableClock(channel int) { p.mu.Lock(); p.clockOn = false; p.mu.Unlock() }

// ClockEnabled reports the peripheral clock gate state.
func (p *Peripheral) ClockEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clockOn
}

// NBTP returns the last programmed bit timing word.
func (p *Peripheral) NBTP() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nbtp
}

var (
	_ mcan.Registers       = (*Peripheral)(nil)
	_ mcan.PinMux          = (*Peripheral)(nil)
	_ mcan.ClockController = (*Peripheral)(nil)
	_ mcan.InterruptMask   = (*Peripheral)(nil)
)
