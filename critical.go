package mcan

// CriticalSection is a nestable interrupt-suppressing region over an
// InterruptMask. Entering disables interrupts only on the outermost level
// and remembers whether they were enabled; leaving re-enables them only
// when the outermost level unwinds and only if they were enabled before.
// This lets the FIFO drain logic run both from caller context and from an
// already-masked interrupt context without re-enabling interrupts early.
//
// The counter itself is only touched with interrupts masked (or before they
// are masked, from the single cooperative context), so no further locking
// is required.
type CriticalSection struct {
	mask       InterruptMask
	depth      uint32
	wasEnabled bool
}

// NewCriticalSection wraps mask in a nesting counter.
func NewCriticalSection(mask InterruptMask) *CriticalSection {
	if mask == nil {
		mask = nopMask{}
	}
	return &CriticalSection{mask: mask}
}

// Enter suspends interrupt delivery for the calling context.
func (c *CriticalSection) Enter() {
	if c.depth == 0 {
		c.wasEnabled = c.mask.Disable()
	}
	c.depth++
}

// Leave unwinds one nesting level, restoring interrupt delivery at the
// outermost level if it was enabled on entry. Leaving a section that was
// never entered is a no-op.
func (c *CriticalSection) Leave() {
	if c.depth == 0 {
		return
	}
	c.depth--
	if c.depth == 0 && c.wasEnabled {
		c.mask.Enable()
	}
}

// Depth reports the current nesting level.
func (c *CriticalSection) Depth() int { return int(c.depth) }
