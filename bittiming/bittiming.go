// Package bittiming converts a requested CAN bit rate into the quantized
// nominal bit timing register values of an M_CAN-style peripheral.
package bittiming

import (
	"errors"
	"fmt"
)

// Hardware limits of the nominal bit timing register: up to 256 quanta
// before the sample point, 128 after it, and a 5-bit prescaler.
const (
	maxSeg1Quanta = 256
	maxSeg2Quanta = 128
	maxDivisor    = 32
)

// ErrUnachievable is returned when no prescaler <= 32 can quantize the
// requested bit rate at the given clock.
var ErrUnachievable = errors.New("bittiming: baud rate unachievable at this clock")

// Params holds the computed timing segments. Prescaler is the hardware
// encoding (divisor minus one). The bit is Seg1+Seg2+1 quanta long, sampled
// at 7/8 of the bit time.
type Params struct {
	Prescaler     uint32
	Seg1          uint32
	Seg2          uint32
	SyncJumpWidth uint32
}

// NBTP packs the parameters into the nominal bit timing register word:
// NSJW[31:25] NBRP[24:16] NTSEG1[15:8] NTSEG2[6:0].
func (p Params) NBTP() uint32 {
	return p.SyncJumpWidth<<25 | p.Prescaler<<16 | p.Seg1<<8 | p.Seg2
}

func divRound(a, b uint32) uint32   { return (a + b/2) / b }
func divRoundUp(a, b uint32) uint32 { return (a + b - 1) / b }

// Compute derives bit timing for the requested baud rate. The sample point
// is fixed at 7/8 of the bit; the smallest divisor fitting both segments in
// their register ranges is chosen. Failure means the rate cannot be
// programmed at this clock and the caller must not activate the peripheral.
func Compute(clockHz, baud uint32) (Params, error) {
	if clockHz == 0 || baud == 0 {
		return Params{}, fmt.Errorf("%w (clock=%d baud=%d)", ErrUnachievable, clockHz, baud)
	}
	clocksPerBit := divRound(clockHz, baud)
	clocksToSample := divRound(clocksPerBit*7, 8)
	clocksAfterSample := clocksPerBit - clocksToSample

	divisor := max(divRoundUp(clocksToSample, maxSeg1Quanta),
		divRoundUp(clocksAfterSample, maxSeg2Quanta))
	if divisor > maxDivisor {
		return Params{}, fmt.Errorf("%w (clock=%d baud=%d divisor=%d)", ErrUnachievable, clockHz, baud, divisor)
	}

	seg1Quanta := divRound(clocksToSample, divisor)
	seg2Quanta := divRound(clocksAfterSample, divisor)
	// Segments shorter than the hardware minimum (sync + 2 quanta before the
	// sample, 1 after) cannot be encoded; treat as unachievable rather than
	// underflowing the register fields.
	if seg1Quanta < 3 || seg2Quanta < 2 {
		return Params{}, fmt.Errorf("%w (clock=%d baud=%d)", ErrUnachievable, clockHz, baud)
	}

	return Params{
		Seg1:          seg1Quanta - 2,
		Seg2:          seg2Quanta - 1,
		Prescaler:     divisor - 1,
		SyncJumpWidth: divRound(clocksAfterSample, divisor*4),
	}, nil
}
