package mcan

import "errors"

// Sentinel errors; callers classify via errors.Is.
var (
	// ErrChannelDisabled means the controller was constructed without TX/RX
	// pins and can never be activated.
	ErrChannelDisabled = errors.New("mcan: channel disabled (no pins assigned)")
	// ErrNotRunning is returned by operations requiring a successful Begin.
	ErrNotRunning = errors.New("mcan: controller not running")
	// ErrTxTimeout means the transmit-complete indicator never set within
	// the bounded poll. The frame may still go out later; the buffer must
	// not be reused until it does.
	ErrTxTimeout = errors.New("mcan: transmit timeout")
	// ErrInvalidChannel marks a channel index outside the part's range.
	ErrInvalidChannel = errors.New("mcan: invalid channel")
)
