package can

// Controller is the generic capability set of a classic CAN controller:
// lifecycle, frame TX/RX, acceptance filtering, callback registration and
// mode selection. Concrete peripheral drivers satisfy it; timing and buffer
// specifics stay in the implementation.
type Controller interface {
	Begin(baud uint32) error
	End()

	Send(f Frame) error
	Receive() (Frame, bool)
	OnReceive(fn func(Frame))

	Filter(id, mask uint32)
	FilterExtended(id, mask uint32)

	Observe() error
	Loopback() error
	Sleep() error
	Wakeup() error
}
