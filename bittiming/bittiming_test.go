package bittiming

import (
	"errors"
	"testing"
)

func TestCompute_500kAt48MHz(t *testing.T) {
	p, err := Compute(48_000_000, 500_000)
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	// 96 clocks per bit, sampled at 7/8: 84 before, 12 after, divisor 1.
	if p.Prescaler != 0 {
		t.Errorf("prescaler = %d, want 0", p.Prescaler)
	}
	if p.Seg1 != 82 {
		t.Errorf("seg1 = %d, want 82", p.Seg1)
	}
	if p.Seg2 != 11 {
		t.Errorf("seg2 = %d, want 11", p.Seg2)
	}
	if p.SyncJumpWidth != 3 {
		t.Errorf("sjw = %d, want 3", p.SyncJumpWidth)
	}
}

func TestCompute_CommonRates(t *testing.T) {
	tests := []struct {
		baud                       uint32
		prescaler, seg1, seg2, sjw uint32
	}{
		{125_000, 1, 166, 23, 6},
		{250_000, 0, 166, 23, 6},
		{500_000, 0, 82, 11, 3},
		{1_000_000, 0, 40, 5, 2},
	}
	for _, tc := range tests {
		p, err := Compute(48_000_000, tc.baud)
		if err != nil {
			t.Fatalf("baud %d: %v", tc.baud, err)
		}
		if p.Prescaler != tc.prescaler || p.Seg1 != tc.seg1 || p.Seg2 != tc.seg2 || p.SyncJumpWidth != tc.sjw {
			t.Errorf("baud %d: got %+v, want presc=%d seg1=%d seg2=%d sjw=%d",
				tc.baud, p, tc.prescaler, tc.seg1, tc.seg2, tc.sjw)
		}
	}
}

// The programmed bit must be clocksPerBit core clocks long and the segment
// fields must stay inside their register ranges whenever Compute succeeds.
func TestCompute_QuantizationInvariants(t *testing.T) {
	clocks := []uint32{8_000_000, 16_000_000, 48_000_000, 80_000_000}
	bauds := []uint32{10_000, 33_333, 83_333, 100_000, 125_000, 250_000, 500_000, 800_000, 1_000_000}
	for _, clk := range clocks {
		for _, baud := range bauds {
			p, err := Compute(clk, baud)
			if err != nil {
				continue
			}
			if p.Prescaler > 31 {
				t.Errorf("clk=%d baud=%d: prescaler %d out of range", clk, baud, p.Prescaler)
			}
			if p.Seg1 > 255 || p.Seg2 > 127 {
				t.Errorf("clk=%d baud=%d: segments %d/%d out of range", clk, baud, p.Seg1, p.Seg2)
			}
			div := p.Prescaler + 1
			quanta := (p.Seg1 + 2) + (p.Seg2 + 1)
			gotClocks := div * quanta
			wantClocks := (clk + baud/2) / baud
			// Rounding the two segments independently can shift the total by
			// at most one quantum per segment.
			lo, hi := wantClocks-2*div, wantClocks+2*div
			if gotClocks < lo || gotClocks > hi {
				t.Errorf("clk=%d baud=%d: bit is %d clocks, want %d (+-%d)", clk, baud, gotClocks, wantClocks, 2*div)
			}
		}
	}
}

func TestCompute_Unachievable(t *testing.T) {
	cases := []struct {
		name  string
		clock uint32
		baud  uint32
	}{
		{"zeroBaud", 48_000_000, 0},
		{"zeroClock", 0, 500_000},
		{"divisorTooLarge", 48_000_000, 10},
		{"tooFewQuanta", 8_000_000, 8_000_000},
	}
	for _, tc := range cases {
		if _, err := Compute(tc.clock, tc.baud); !errors.Is(err, ErrUnachievable) {
			t.Errorf("%s: got %v, want ErrUnachievable", tc.name, err)
		}
	}
}

func TestParams_NBTP(t *testing.T) {
	p := Params{Prescaler: 1, Seg1: 82, Seg2: 11, SyncJumpWidth: 3}
	want := uint32(3)<<25 | uint32(1)<<16 | uint32(82)<<8 | uint32(11)
	if got := p.NBTP(); got != want {
		t.Fatalf("NBTP() = %#08x, want %#08x", got, want)
	}
}
