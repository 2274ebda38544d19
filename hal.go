package mcan

// Pin identifies a board pin handed to the pin multiplexer.
type Pin int16

// PinNone marks an unassigned pin; a controller without TX/RX pins is a
// permanently disabled channel.
const PinNone Pin = -1

// PinMux assigns pin functions. ConfigureCAN routes a pin to the CAN
// peripheral function of the given channel; ConfigureInput returns it to a
// neutral, non-driven input.
type PinMux interface {
	ConfigureCAN(pin Pin, channel int) error
	ConfigureInput(pin Pin)
}

// ClockController gates the peripheral clock of a CAN channel.
type ClockController interface {
	EnableClock(channel int)
	DisableClock(channel int)
}

// InterruptMask is the global interrupt disable/enable capability.
// Disable reports whether interrupts were enabled beforehand so nested
// critical sections can restore the prior state exactly.
type InterruptMask interface {
	Disable() (wasEnabled bool)
	Enable()
}

// nopPinMux and nopClock keep a bare controller usable in tests that only
// exercise register traffic.
type nopPinMux struct{}

func (nopPinMux) ConfigureCAN(Pin, int) error { return nil }
func (nopPinMux) ConfigureInput(Pin)          {}

type nopClock struct{}

func (nopClock) EnableClock(int)  {}
func (nopClock) DisableClock(int) {}

// nopMask satisfies InterruptMask where no interrupt delivery exists
// (plain single-threaded use without a simulator).
type nopMask struct{}

func (nopMask) Disable() bool { return false }
func (nopMask) Enable()       {}
