package mcan

import "fmt"

// MaxChannels is the number of physical CAN channels the part exposes.
const MaxChannels = 2

// Registry routes hardware interrupt vectors to the Controller owning a
// channel. Slots are populated on a successful Begin and cleared on End; an
// interrupt for an empty slot is spurious and ignored.
type Registry struct {
	controllers [MaxChannels]*Controller
}

// NewRegistry returns an empty registry. Most users share DefaultRegistry.
func NewRegistry() *Registry { return &Registry{} }

// DefaultRegistry is the process-wide channel table consulted by
// ServiceInterrupt.
var DefaultRegistry = NewRegistry()

func (r *Registry) register(channel int, c *Controller) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("%w: channel %d", ErrInvalidChannel, channel)
	}
	r.controllers[channel] = c
	return nil
}

func (r *Registry) deregister(channel int, c *Controller) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	if r.controllers[channel] == c {
		r.controllers[channel] = nil
	}
}

// Controller returns the registered owner of a channel, or nil.
func (r *Registry) Controller(channel int) *Controller {
	if channel < 0 || channel >= MaxChannels {
		return nil
	}
	return r.controllers[channel]
}

// Dispatch runs the interrupt service of the channel's controller inside
// its critical section, mirroring the vector handlers on silicon. A missing
// entry is a no-op.
func (r *Registry) Dispatch(channel int) {
	c := r.Controller(channel)
	if c == nil {
		spuriousInterrupt(channel)
		return
	}
	c.crit.Enter()
	c.HandleInterrupt()
	c.crit.Leave()
}

// ServiceInterrupt is the interrupt entry point against DefaultRegistry.
func ServiceInterrupt(channel int) { DefaultRegistry.Dispatch(channel) }
