package mcan

import "testing"

func TestTxBufferElement_StandardIDPlacement(t *testing.T) {
	var e TxBufferElement
	e.SetID(0x123, false)
	if e.T0>>18&0x7FF != 0x123 {
		t.Fatalf("standard ID not left-aligned: T0=%#08x", e.T0)
	}
	if got := e.ID(false); got != 0x123 {
		t.Fatalf("ID() = %#x, want 0x123", got)
	}
}

func TestTxBufferElement_ExtendedID(t *testing.T) {
	var e TxBufferElement
	e.SetID(0x1ABCDEF, true)
	e.SetXTD(true)
	if got := e.ID(true); got != 0x1ABCDEF {
		t.Fatalf("ID() = %#x, want 0x1ABCDEF", got)
	}
	if !e.XTD() {
		t.Fatal("XTD bit not set")
	}
}

func TestRxFIFOElement_FieldRoundTrip(t *testing.T) {
	var e RxFIFOElement
	e.SetID(0x5AA, false)
	e.SetRTR(true)
	e.SetDLC(6)
	e.SetTimestamp(0xBEEF)
	if e.ID(false) != 0x5AA || !e.RTR() || e.DLC() != 6 || e.Timestamp() != 0xBEEF {
		t.Fatalf("round trip: id=%#x rtr=%v dlc=%d ts=%#x", e.ID(false), e.RTR(), e.DLC(), e.Timestamp())
	}
}

func TestStandardFilterElement_Packing(t *testing.T) {
	var e StandardFilterElement
	e.Set(0x123, 0x7FF, FilterStoreFIFO0, FilterTypeClassic)
	want := FilterTypeClassic<<30 | FilterStoreFIFO0<<27 | uint32(0x123)<<16 | 0x7FF
	if e.S0 != want {
		t.Fatalf("S0 = %#08x, want %#08x", e.S0, want)
	}
	if e.ID() != 0x123 || e.Mask() != 0x7FF || e.Config() != FilterStoreFIFO0 || e.Type() != FilterTypeClassic {
		t.Fatalf("unpack: id=%#x mask=%#x cfg=%d type=%d", e.ID(), e.Mask(), e.Config(), e.Type())
	}
}

func TestExtendedFilterElement_Packing(t *testing.T) {
	var e ExtendedFilterElement
	e.Set(0x1FFFFFFF, 0x1F00FF00, FilterReject, FilterTypeClassic)
	if e.ID() != 0x1FFFFFFF || e.Mask() != 0x1F00FF00 {
		t.Fatalf("unpack: id=%#x mask=%#x", e.ID(), e.Mask())
	}
	if e.Config() != FilterReject || e.Type() != FilterTypeClassic {
		t.Fatalf("unpack: cfg=%d type=%d", e.Config(), e.Type())
	}
}

func TestMessageRAM_Reset(t *testing.T) {
	var m MessageRAM
	m.TxBuffer[0].SetID(0x1, false)
	m.StdFilter[0].Set(0x1, 0x1, FilterStoreFIFO0, FilterTypeClassic)
	m.Reset()
	if m.TxBuffer[0].T0 != 0 || m.StdFilter[0].S0 != 0 {
		t.Fatal("Reset left residue")
	}
}
