// Package mcan drives an M_CAN-style CAN peripheral: bit timing setup,
// message RAM buffers and filters, and interrupt-driven reception. The
// hardware is reached through the Registers interface so the same driver
// runs against silicon register files and the sim package.
package mcan

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/canwire/mcan/bittiming"
	"github.com/canwire/mcan/can"
	"github.com/canwire/mcan/internal/logging"
	"github.com/canwire/mcan/internal/metrics"
)

// DefaultClockHz is the CAN core clock of the reference board (GCLK1).
const DefaultClockHz = 48_000_000

// txPollLimit bounds the transmit-complete busy poll in Send.
const txPollLimit = 8000

// Controller owns one CAN channel: its register file, its message RAM and
// its slot in the interrupt registry. One instance per physical channel;
// a second Send before the first completes overwrites the in-flight slot,
// so callers must serialize sends themselves.
type Controller struct {
	hw       Registers
	ram      *MessageRAM
	channel  int
	txPin    Pin
	rxPin    Pin
	pins     PinMux
	clock    ClockController
	crit     *CriticalSection
	yield    func()
	registry *Registry
	logger   *slog.Logger
	clockHz  uint32

	running   bool
	onReceive func(can.Frame)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPins assigns the TX and RX pins. Without it the channel is
// permanently disabled and Begin fails.
func WithPins(tx, rx Pin) Option {
	return func(c *Controller) { c.txPin, c.rxPin = tx, rx }
}

// WithChannel selects the physical channel index (default 1).
func WithChannel(n int) Option { return func(c *Controller) { c.channel = n } }

// WithClockHz overrides the CAN core clock frequency.
func WithClockHz(hz uint32) Option {
	return func(c *Controller) {
		if hz > 0 {
			c.clockHz = hz
		}
	}
}

// WithPinMux injects the pin-function service.
func WithPinMux(pm PinMux) Option {
	return func(c *Controller) {
		if pm != nil {
			c.pins = pm
		}
	}
}

// WithClockControl injects the peripheral clock gate.
func WithClockControl(cc ClockController) Option {
	return func(c *Controller) {
		if cc != nil {
			c.clock = cc
		}
	}
}

// WithInterruptMask injects the global interrupt mask used for the FIFO
// critical sections.
func WithInterruptMask(m InterruptMask) Option {
	return func(c *Controller) { c.crit = NewCriticalSection(m) }
}

// WithYield replaces the cooperative yield called inside busy-wait loops
// (default runtime.Gosched).
func WithYield(fn func()) Option {
	return func(c *Controller) {
		if fn != nil {
			c.yield = fn
		}
	}
}

// WithRegistry attaches the controller to a registry other than
// DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithMessageRAM supplies an externally placed buffer region, for targets
// where the hardware can only reach part of the address space.
func WithMessageRAM(ram *MessageRAM) Option {
	return func(c *Controller) {
		if ram != nil {
			c.ram = ram
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a controller for the given register file. The zero
// configuration is a disabled channel 1 clocked at DefaultClockHz.
func New(hw Registers, opts ...Option) *Controller {
	c := &Controller{
		hw:       hw,
		channel:  1,
		txPin:    PinNone,
		rxPin:    PinNone,
		pins:     nopPinMux{},
		clock:    nopClock{},
		crit:     NewCriticalSection(nil),
		yield:    runtime.Gosched,
		registry: DefaultRegistry,
		logger:   logging.L(),
		clockHz:  DefaultClockHz,
	}
	for _, o := range opts {
		o(c)
	}
	if c.ram == nil {
		c.ram = new(MessageRAM)
	}
	return c
}

// Channel returns the physical channel index.
func (c *Controller) Channel() int { return c.channel }

// Running reports whether Begin has completed successfully.
func (c *Controller) Running() bool { return c.running }

// enterConfig halts the peripheral and opens the configuration window,
// waiting for the hardware to acknowledge initialization mode.
func (c *Controller) enterConfig() {
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRInit)
	for c.hw.ReadCCCR()&CCCRInit == 0 {
		c.yield()
	}
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRCCE)
}

// leaveConfig closes the configuration window and waits for the peripheral
// to leave initialization mode.
func (c *Controller) leaveConfig() {
	c.hw.WriteCCCR(c.hw.ReadCCCR() &^ uint32(CCCRCCE|CCCRInit))
	for c.hw.ReadCCCR()&CCCRInit != 0 {
		c.yield()
	}
}

// Begin activates the channel at the requested bit rate. It fails without
// touching hardware when no pins are assigned or the rate cannot be
// quantized at the core clock.
func (c *Controller) Begin(baud uint32) error {
	if c.txPin == PinNone || c.rxPin == PinNone {
		return ErrChannelDisabled
	}
	params, err := bittiming.Compute(c.clockHz, baud)
	if err != nil {
		return err
	}

	c.ram.Reset()
	c.hw.AttachMessageRAM(c.ram)

	if err := c.pins.ConfigureCAN(c.txPin, c.channel); err != nil {
		return fmt.Errorf("mcan: tx pin: %w", err)
	}
	if err := c.pins.ConfigureCAN(c.rxPin, c.channel); err != nil {
		c.pins.ConfigureInput(c.txPin)
		return fmt.Errorf("mcan: rx pin: %w", err)
	}
	c.clock.EnableClock(c.channel)

	c.enterConfig()

	// 8-byte payloads everywhere; classic CAN only.
	c.hw.WriteTXESC(ESCData8)
	c.hw.WriteTXBC(TxBufferCount << TXBCNDTBPos)
	c.hw.WriteRXESC(ESCData8<<RXESCF0DSPos | ESCData8<<RXESCF1DSPos | ESCData8<<RXESCRBDSPos)
	c.hw.WriteRXF0C(RxFIFODepth << RXF0CF0SPos)

	// Reject everything not explicitly matched, then accept-all defaults in
	// both filter slots.
	c.hw.WriteGFC(GFCRejectAll)
	c.ram.StdFilter[0].Set(0, 0, FilterStoreFIFO0, FilterTypeClassic)
	c.ram.ExtFilter[0].Set(0, 0, FilterStoreFIFO0, FilterTypeClassic)
	c.hw.WriteSIDFC(FilterCount << SIDFCLSSPos)
	c.hw.WriteXIDFC(FilterCount << XIDFCLSEPos)

	c.hw.WriteNBTP(params.NBTP())

	c.leaveConfig()

	if err := c.registry.register(c.channel, c); err != nil {
		return err
	}
	c.running = true
	c.logger.Info("can_begin",
		"channel", c.channel,
		"baud", baud,
		"prescaler", params.Prescaler,
		"seg1", params.Seg1,
		"seg2", params.Seg2,
		"sjw", params.SyncJumpWidth,
	)
	return nil
}

// End deactivates the channel: pending interrupts find no owner, pins go
// back to inputs and the peripheral re-enters its halted state. The
// peripheral clock is left running; see the package notes.
func (c *Controller) End() {
	c.registry.deregister(c.channel, c)
	c.pins.ConfigureInput(c.txPin)
	c.pins.ConfigureInput(c.rxPin)
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRInit)
	for c.hw.ReadCCCR()&CCCRInit == 0 {
		c.yield()
	}
	c.running = false
	c.logger.Info("can_end", "channel", c.channel)
}

// Send copies the frame into the transmit slot, requests transmission and
// busy-polls the completion indicator, yielding between polls. The transmit
// buffer holds one frame; callers must not issue a second Send before the
// first returns.
func (c *Controller) Send(f can.Frame) error {
	if !c.running {
		return ErrNotRunning
	}
	if err := f.Validate(); err != nil {
		return err
	}

	buf := &c.ram.TxBuffer[0]
	buf.SetESI(false)
	buf.SetXTD(f.Extended)
	buf.SetRTR(f.RTR)
	buf.SetID(f.ID, f.Extended)
	buf.SetMM(0)
	buf.SetEFC(false)
	buf.SetDLC(f.Len)
	if !f.RTR {
		copy(buf.Data[:], f.Data[:f.Len])
	}

	c.hw.WriteTXBAR(1)

	for i := 0; i < txPollLimit; i++ {
		if c.hw.ReadTXBTO()&1 != 0 {
			metrics.IncCANTx()
			return nil
		}
		c.yield()
	}
	metrics.IncTxTimeout()
	c.logger.Warn("can_tx_timeout", "channel", c.channel, "id", fmt.Sprintf("0x%X", f.ID))
	return ErrTxTimeout
}

// Receive drains one frame from the RX FIFO. ok is false when the FIFO is
// empty; a zero-length data frame returns ok true with Len 0. The whole
// read-and-acknowledge sequence runs with interrupts suppressed because the
// interrupt service uses the same drain path.
func (c *Controller) Receive() (can.Frame, bool) {
	c.crit.Enter()
	defer c.crit.Leave()

	status := c.hw.ReadRXF0S()
	if status&RXF0SFillMask == 0 {
		return can.Frame{}, false
	}
	idx := int(status&RXF0SGetMask) >> RXF0SGetPos
	slot := &c.ram.RxFIFO[idx]

	var f can.Frame
	f.Extended = slot.XTD()
	f.RTR = slot.RTR()
	f.ID = slot.ID(f.Extended)
	dlc := slot.DLC()
	if dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	f.Len = dlc // for RTR frames this is only the length hint
	if !f.RTR {
		copy(f.Data[:], slot.Data[:dlc])
	}

	// Free the slot for the hardware before leaving the critical section.
	c.hw.WriteRXF0A(uint32(idx))
	metrics.IncCANRx()
	return f, true
}

// OnReceive installs the receive callback and switches the FIFO-non-empty
// interrupt source accordingly. A nil callback disables interrupt-driven
// delivery, leaving polling as the only consumption path.
func (c *Controller) OnReceive(fn func(can.Frame)) {
	c.onReceive = fn
	ie := c.hw.ReadIE()
	if fn != nil {
		ie |= IRRxFIFO0New
	} else {
		ie &^= uint32(IRRxFIFO0New)
	}
	c.hw.WriteIE(ie)
}

// HandleInterrupt services the channel's interrupt: drains the RX FIFO,
// invoking the callback per frame, then acknowledges exactly the status
// bits observed so a flag raised in the interim is not lost.
func (c *Controller) HandleInterrupt() {
	ir := c.hw.ReadIR()

	if ir&IRRxFIFO0New != 0 {
		for {
			f, ok := c.Receive()
			if !ok {
				break
			}
			if c.onReceive != nil {
				c.onReceive(f)
			}
		}
	}
	if ir&IRRxFIFO0Lost != 0 {
		metrics.IncCANRxLost()
		c.logger.Warn("can_rx_overrun", "channel", c.channel)
	}

	c.hw.WriteIR(ir)
}

// Filter installs a standard-addressing accept filter and rejects all
// extended traffic. The filter table has one slot per addressing class, so
// Filter and FilterExtended are mutually exclusive in effect; whichever ran
// last wins.
func (c *Controller) Filter(id, mask uint32) {
	c.ram.StdFilter[0].Set(id, mask, FilterStoreFIFO0, FilterTypeClassic)
	c.ram.ExtFilter[0].Set(0, 0, FilterReject, FilterTypeClassic)
}

// FilterExtended installs an extended-addressing accept filter and rejects
// all standard traffic; the mirror of Filter.
func (c *Controller) FilterExtended(id, mask uint32) {
	c.ram.StdFilter[0].Set(0, 0, FilterReject, FilterTypeClassic)
	c.ram.ExtFilter[0].Set(id, mask, FilterStoreFIFO0, FilterTypeClassic)
}

// Observe enters listen-only mode: reception works, transmission and
// acknowledgment are suppressed.
func (c *Controller) Observe() error {
	if !c.running {
		return ErrNotRunning
	}
	c.enterConfig()
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRMon)
	c.leaveConfig()
	c.logger.Info("can_mode", "channel", c.channel, "mode", "observe")
	return nil
}

// Loopback enters internal loopback: transmitted frames are routed back to
// the receive path without reaching the bus.
func (c *Controller) Loopback() error {
	if !c.running {
		return ErrNotRunning
	}
	c.enterConfig()
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRTest)
	c.hw.WriteTEST(TestLBCK)
	c.leaveConfig()
	c.logger.Info("can_mode", "channel", c.channel, "mode", "loopback")
	return nil
}

// Sleep requests clock stop, waits for the acknowledge and gates the
// peripheral clock off.
func (c *Controller) Sleep() error {
	if !c.running {
		return ErrNotRunning
	}
	c.hw.WriteCCCR(c.hw.ReadCCCR() | CCCRCSR)
	for c.hw.ReadCCCR()&CCCRCSA == 0 {
		c.yield()
	}
	c.clock.DisableClock(c.channel)
	c.logger.Info("can_mode", "channel", c.channel, "mode", "sleep")
	return nil
}

// Wakeup re-enables the peripheral clock and restarts the channel.
func (c *Controller) Wakeup() error {
	if !c.running {
		return ErrNotRunning
	}
	c.clock.EnableClock(c.channel)
	c.hw.WriteCCCR(c.hw.ReadCCCR() &^ uint32(CCCRCSR|CCCRInit))
	for c.hw.ReadCCCR()&CCCRInit != 0 {
		c.yield()
	}
	c.logger.Info("can_mode", "channel", c.channel, "mode", "normal")
	return nil
}

func spuriousInterrupt(channel int) {
	metrics.IncSpuriousIRQ()
	logging.L().Debug("can_spurious_interrupt", "channel", channel)
}

var _ can.Controller = (*Controller)(nil)
