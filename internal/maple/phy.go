package maple

// PHY is the pluggable hardware backend a BusDriver drives. It stands in
// for the bit-banged PIO programs and DMA channels of the real hardware
// (spec §9: "treat the PIO programs as a pluggable hardware backend"). A
// concrete PHY owns the physical two-wire line, a direction pin, and the
// TX/RX DMA buffers; it calls back into the owning BusDriver's Handle*
// methods when the hardware completion events occur (spec §4.4's "TX
// near-end ISR", "RX start-seen ISR", "RX end-seen ISR").
type PHY interface {
	// LinesHigh reports whether both data lines currently read high.
	LinesHigh() bool
	// SetDirection switches the bus buffer direction: true = host drives
	// the line (write), false = host listens (read).
	SetDirection(output bool)
	// SubmitTX hands the assembled write buffer to the TX state machine
	// and kicks its DMA channel.
	SubmitTX(buf WriteBuffer) error
	// StopTX halts the TX state machine and DMA channel.
	StopTX()
	// ArmRX pre-arms the RX state machine and DMA channel. preTrigger is
	// true when the line is already expected to start producing a
	// response immediately after a write (spec §4.4's autostartRead).
	ArmRX(preTrigger bool)
	// StopRX halts the RX state machine and DMA channel.
	StopRX()
	// ReadRX returns the words captured so far in the RX DMA buffer and
	// the buffer's residual (remaining free word capacity). A residual of
	// 0 always indicates overflow, never normal completion, because the
	// capture buffer carries one spare word beyond the protocol maximum.
	ReadRX() (words []uint32, residual int)
}

// RXCaptureCapacityWords is the RX DMA buffer's word capacity: one frame
// word, up to MaxPayloadWords payload words, one trailer word carrying the
// CRC byte, plus one spare word so a residual of 0 unambiguously means
// overflow rather than an exact-fit normal completion (spec §3).
const RXCaptureCapacityWords = 1 + MaxPayloadWords + 1 + 1

// MaxPayloadWords is the largest payload the 8-bit Frame.Length field can
// describe.
const MaxPayloadWords = 255
