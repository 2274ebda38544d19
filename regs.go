package mcan

// Register bit definitions for the subset of the M_CAN register file the
// driver touches. Names follow the data sheet.

// CCCR - CC control register.
const (
	CCCRInit = 1 << 0 // initialization mode
	CCCRCCE  = 1 << 1 // configuration change enable
	CCCRASM  = 1 << 2 // restricted operation
	CCCRCSA  = 1 << 3 // clock stop acknowledge
	CCCRCSR  = 1 << 4 // clock stop request
	CCCRMon  = 1 << 5 // bus monitoring (listen-only)
	CCCRDAR  = 1 << 6 // disable automatic retransmission
	CCCRTest = 1 << 7 // test mode enable
)

// TEST register.
const (
	TestLBCK = 1 << 4 // loopback mode
)

// IR / IE - interrupt status and enable. Only the RX FIFO 0 sources are
// used by this driver.
const (
	IRRxFIFO0New  = 1 << 0 // RF0N: new message in FIFO 0
	IRRxFIFO0Full = 1 << 2 // RF0F
	IRRxFIFO0Lost = 1 << 3 // RF0L: message lost
)

// TXESC / RXESC data field size encodings. Classic CAN uses 8-byte fields.
const (
	ESCData8 = 0x0
)

// RXESC field positions.
const (
	RXESCF0DSPos = 0
	RXESCF1DSPos = 4
	RXESCRBDSPos = 8
)

// TXBC - TX buffer configuration.
const (
	TXBCNDTBPos = 16 // number of dedicated transmit buffers
)

// RXF0C - RX FIFO 0 configuration.
const (
	RXF0CF0SPos = 16 // FIFO 0 size
)

// GFC - global filter configuration. ANFS/ANFE select the disposition of
// frames matching no filter; 0x2 rejects them.
const (
	GFCANFEPos   = 2
	GFCANFSPos   = 4
	GFCReject    = 0x2
	GFCRejectAll = GFCReject<<GFCANFSPos | GFCReject<<GFCANFEPos
)

// SIDFC / XIDFC - filter list configuration.
const (
	SIDFCLSSPos = 16 // list size, standard
	XIDFCLSEPos = 16 // list size, extended
)

// RXF0S - RX FIFO 0 status.
const (
	RXF0SFillMask   = 0x7F      // F0FL, bits 6:0
	RXF0SGetPos     = 8         // F0GI, bits 13:8
	RXF0SGetMask    = 0x3F << 8
	RXF0SFull       = 1 << 24   // F0F
	RXF0SLost       = 1 << 25   // RF0L
)

// Registers is the register-level hardware abstraction of one CAN channel.
// The production implementation maps these onto the memory-mapped register
// file; the sim package emulates the peripheral behind the same interface.
//
// AttachMessageRAM hands the hardware its view of the shared buffer region;
// on silicon this corresponds to programming the message RAM base addresses.
type Registers interface {
	AttachMessageRAM(ram *MessageRAM)

	ReadCCCR() uint32
	WriteCCCR(v uint32)
	WriteTEST(v uint32)
	WriteNBTP(v uint32)

	WriteTXESC(v uint32)
	WriteTXBC(v uint32)
	WriteRXESC(v uint32)
	WriteRXF0C(v uint32)
	WriteGFC(v uint32)
	WriteSIDFC(v uint32)
	WriteXIDFC(v uint32)

	ReadRXF0S() uint32
	WriteRXF0A(v uint32)

	WriteTXBAR(v uint32)
	ReadTXBTO() uint32

	ReadIR() uint32
	WriteIR(v uint32)
	ReadIE() uint32
	WriteIE(v uint32)
}
